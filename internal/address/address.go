// Package address keeps participant identifiers in one canonical form.
// Every equality check, map key and membership test on participants goes
// through Normalize first.
package address

import (
	goerr "errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotParticipant = goerr.New("address is not a room participant")

// Pair is anything holding the two ordered participants of a room.
type Pair interface {
	Participants() (string, string)
}

func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsValid reports whether id is a 20-byte hex account address.
func IsValid(id string) bool {
	return common.IsHexAddress(strings.TrimSpace(id))
}

func IsParticipant(pair Pair, id string) bool {
	a, b := pair.Participants()
	return Equal(a, id) || Equal(b, id)
}

// Counterpart returns the other participant of the pair.
func Counterpart(pair Pair, id string) (string, error) {
	a, b := pair.Participants()
	switch {
	case Equal(a, id):
		return Normalize(b), nil
	case Equal(b, id):
		return Normalize(a), nil
	}
	return "", ErrNotParticipant
}
