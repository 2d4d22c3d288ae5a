// Package ledger derives per-participant session balances from the submitted
// proposal history of a room. Nothing here is stored: balances are always
// recomputed by folding the history, so concurrent readers need no locking.
package ledger

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Allocations maps normalized participants to amounts in minor units.
type Allocations map[string]*big.Int

func (a Allocations) Get(participant string) *big.Int {
	if v, ok := a[address.Normalize(participant)]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (a Allocations) MarshalJSON() ([]byte, error) {
	res := make(map[string]string, len(a))
	for k, v := range a {
		res[k] = v.String()
	}
	return json.Marshal(res)
}

type Delta struct {
	Before *big.Int
	After  *big.Int
	Delta  *big.Int
}

func (d Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Before string `json:"before"`
		After  string `json:"after"`
		Delta  string `json:"delta"`
	}{d.Before.String(), d.After.String(), d.Delta.String()})
}

func zero(room data.Room) Allocations {
	return Allocations{
		address.Normalize(room.ParticipantA): new(big.Int),
		address.Normalize(room.ParticipantB): new(big.Int),
	}
}

// overlay applies the allocations listed for the room asset on top of current.
func overlay(room data.Room, current Allocations, allocations []payload.Allocation) {
	for _, a := range allocations {
		if a.Asset != room.Asset {
			continue
		}
		current[address.Normalize(a.Participant)] = a.AmountInt()
	}
}

// Current folds the submitted history (oldest first) into the latest allocations.
// Participants never listed stay at zero.
func Current(room data.Room, history []data.Proposal) (Allocations, error) {
	current := zero(room)

	for _, p := range history {
		if p.Status != data.ProposalStatusSubmitted || p.RoomID != room.ID {
			continue
		}

		action, err := payload.Parse(p.Kind, p.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse submitted payload", logan.F{
				"proposal_id": p.ID,
			})
		}

		overlay(room, current, action.Allocations())
	}

	return current, nil
}

// Preview returns what applying the pending action would do to the current allocations.
func Preview(room data.Room, history []data.Proposal, pending payload.Action) (map[string]Delta, error) {
	before, err := Current(room, history)
	if err != nil {
		return nil, err
	}

	after := make(Allocations, len(before))
	for k, v := range before {
		after[k] = new(big.Int).Set(v)
	}
	overlay(room, after, pending.Allocations())

	res := make(map[string]Delta, len(after))
	for participant, amount := range after {
		prev := before.Get(participant)
		res[participant] = Delta{
			Before: prev,
			After:  new(big.Int).Set(amount),
			Delta:  new(big.Int).Sub(amount, prev),
		}
	}

	return res, nil
}

// Increased lists participants whose balance strictly grows, sorted.
func Increased(deltas map[string]Delta) []string {
	res := make([]string, 0, 1)
	for participant, d := range deltas {
		if d.Delta.Sign() > 0 {
			res = append(res, participant)
		}
	}
	sort.Strings(res)
	return res
}
