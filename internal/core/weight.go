package core

import (
	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/payload"
)

// signedWeight sums the fixed weight of the distinct room participants present
// in the signature map. Any other key contributes nothing.
func signedWeight(room data.Room, signatures data.Signatures) int64 {
	var weight int64
	for _, participant := range []string{room.ParticipantA, room.ParticipantB} {
		if _, ok := signatures[address.Normalize(participant)]; ok {
			weight += payload.ParticipantWeight
		}
	}
	return weight
}

// orderedSignatures lists the collected signatures as participant A then B.
func orderedSignatures(room data.Room, signatures data.Signatures) []string {
	res := make([]string, 0, 2)
	for _, participant := range []string{room.ParticipantA, room.ParticipantB} {
		if sig, ok := signatures[address.Normalize(participant)]; ok {
			res = append(res, sig)
		}
	}
	return res
}
