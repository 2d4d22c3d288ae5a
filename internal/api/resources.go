package api

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/ledger"
)

type Room struct {
	ID           string     `json:"id"`
	ParticipantA string     `json:"participant_a"`
	ParticipantB string     `json:"participant_b"`
	Chain        string     `json:"chain"`
	Asset        string     `json:"asset"`
	Decimals     uint8      `json:"decimals"`
	Status       string     `json:"status"`
	SessionID    string     `json:"session_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type Proposal struct {
	ID             string            `json:"id"`
	RoomID         string            `json:"room_id"`
	Kind           string            `json:"kind"`
	Payload        json.RawMessage   `json:"payload"`
	PayloadHash    string            `json:"payload_hash"`
	RequiredQuorum int64             `json:"required_quorum"`
	Signers        []string          `json:"signers"`
	Signatures     map[string]string `json:"signatures"`
	Revision       int64             `json:"revision"`
	Status         string            `json:"status"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type SignResult struct {
	Proposal Proposal `json:"proposal"`
	Weight   int64    `json:"weight"`
}

type Event struct {
	ID         int64           `json:"id"`
	RoomID     string          `json:"room_id"`
	ProposalID string          `json:"proposal_id,omitempty"`
	Actor      string          `json:"actor"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Amount is a minor unit amount with its human readable form.
type Amount struct {
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

type Delta struct {
	Before Amount `json:"before"`
	After  Amount `json:"after"`
	Delta  Amount `json:"delta"`
}

type Submission struct {
	Proposal  Proposal         `json:"proposal"`
	Deltas    map[string]Delta `json:"deltas"`
	Version   uint64           `json:"version"`
	Submitter string           `json:"submitter,omitempty"`
}

// RoomChange is pushed to roomChanges subscribers; clients re-fetch the room on receipt.
type RoomChange struct {
	RoomID string `json:"room_id"`
}

type HashResult struct {
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
}

func newRoom(room *data.Room, decimals uint8) Room {
	res := Room{
		ID:           room.ID,
		ParticipantA: room.ParticipantA,
		ParticipantB: room.ParticipantB,
		Chain:        room.Chain,
		Asset:        room.Asset,
		Decimals:     decimals,
		Status:       string(room.Status),
		SessionID:    room.SessionID.String,
		CreatedAt:    room.CreatedAt,
	}
	if !room.ExpiresAt.IsZero() {
		expiresAt := room.ExpiresAt
		res.ExpiresAt = &expiresAt
	}
	return res
}

func newProposal(p *data.Proposal) Proposal {
	signers := make([]string, 0, len(p.Signatures))
	for signer := range p.Signatures {
		signers = append(signers, signer)
	}
	sort.Strings(signers)

	res := Proposal{
		ID:             p.ID,
		RoomID:         p.RoomID,
		Kind:           string(p.Kind),
		Payload:        json.RawMessage(p.Payload),
		PayloadHash:    p.PayloadHash,
		RequiredQuorum: p.RequiredQuorum,
		Signers:        signers,
		Signatures:     p.Signatures,
		Revision:       p.Revision,
		Status:         string(p.Status),
		Error:          p.Error.String,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.Result.Valid {
		res.Result = json.RawMessage(p.Result.JSON)
	}
	return res
}

func newProposals(proposals []data.Proposal) []Proposal {
	res := make([]Proposal, 0, len(proposals))
	for i := range proposals {
		res = append(res, newProposal(&proposals[i]))
	}
	return res
}

func newEvents(events []data.Event) []Event {
	res := make([]Event, 0, len(events))
	for _, e := range events {
		res = append(res, Event{
			ID:         e.ID,
			RoomID:     e.RoomID,
			ProposalID: e.ProposalID.String,
			Actor:      e.Actor,
			Type:       string(e.Type),
			Payload:    json.RawMessage(e.Payload),
			CreatedAt:  e.CreatedAt,
		})
	}
	return res
}

func newAllocations(allocations ledger.Allocations, decimals uint8) map[string]Amount {
	res := make(map[string]Amount, len(allocations))
	for participant, amount := range allocations {
		res[participant] = Amount{
			Amount:  amount.String(),
			Display: ledger.FormatAmount(amount, decimals),
		}
	}
	return res
}

func newDeltas(deltas map[string]ledger.Delta, decimals uint8) map[string]Delta {
	res := make(map[string]Delta, len(deltas))
	for participant, d := range deltas {
		res[participant] = Delta{
			Before: Amount{Amount: d.Before.String(), Display: ledger.FormatAmount(d.Before, decimals)},
			After:  Amount{Amount: d.After.String(), Display: ledger.FormatAmount(d.After, decimals)},
			Delta:  Amount{Amount: d.Delta.String(), Display: ledger.FormatAmount(d.Delta, decimals)},
		}
	}
	return res
}
