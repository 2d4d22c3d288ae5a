// Package payload defines the typed actions carried by proposals.
//
// Every proposal kind has its own payload shape. Payloads are parsed strictly,
// validated against the room they target and re-encoded into a canonical JSON
// form whose keccak256 hash is the value participants sign.
package payload

import (
	"bytes"
	"encoding/json"
	goerr "errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
)

const (
	ParticipantWeight = 50
	RequiredQuorum    = 100
)

var ErrInvalidPayload = goerr.New("invalid payload")

// ValidationError describes why a payload was rejected. It matches ErrInvalidPayload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type Intent string

const (
	IntentOperate  Intent = "operate"
	IntentDeposit  Intent = "deposit"
	IntentWithdraw Intent = "withdraw"
)

type Allocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	// Amount is a non-negative integer in the asset minor units.
	Amount string `json:"amount"`
}

// AmountInt returns the allocation amount. Only call it on validated allocations.
func (a Allocation) AmountInt() *big.Int {
	v, _ := new(big.Int).SetString(a.Amount, 10)
	return v
}

type Definition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int64  `json:"weights"`
	Quorum       int64    `json:"quorum"`
	Challenge    uint64   `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

// Action is a validated proposal payload.
type Action interface {
	Kind() data.ProposalKind
	Allocations() []Allocation
	normalize() error
	validateFor(room data.Room) error
}

type CreateSession struct {
	Definition     Definition   `json:"definition"`
	AllocationList []Allocation `json:"allocations"`
	SessionData    string       `json:"session_data,omitempty"`
	Note           string       `json:"note,omitempty"`
}

type Operate struct {
	Intent         Intent       `json:"intent"`
	AllocationList []Allocation `json:"allocations"`
	SessionData    string       `json:"session_data,omitempty"`
	Note           string       `json:"note,omitempty"`
}

type CloseSession struct {
	AllocationList []Allocation `json:"allocations"`
	SessionData    string       `json:"session_data,omitempty"`
	Note           string       `json:"note,omitempty"`
}

func (c *CreateSession) Kind() data.ProposalKind  { return data.ProposalKindCreateSession }
func (c *CreateSession) Allocations() []Allocation { return c.AllocationList }

func (o *Operate) Kind() data.ProposalKind  { return data.ProposalKindOperate }
func (o *Operate) Allocations() []Allocation { return o.AllocationList }

func (c *CloseSession) Kind() data.ProposalKind  { return data.ProposalKindCloseSession }
func (c *CloseSession) Allocations() []Allocation { return c.AllocationList }

func (c *CreateSession) normalize() error {
	if c.Definition.Protocol == "" {
		return invalid("definition protocol is empty")
	}
	for i, p := range c.Definition.Participants {
		if !address.IsValid(p) {
			return invalid("definition participant %q is not an address", p)
		}
		c.Definition.Participants[i] = address.Normalize(p)
	}
	return normalizeAllocations(c.AllocationList)
}

func (c *CreateSession) validateFor(room data.Room) error {
	def := c.Definition
	if len(def.Participants) != 2 || def.Participants[0] != room.ParticipantA || def.Participants[1] != room.ParticipantB {
		return invalid("definition participants must be the room participants in order")
	}
	if len(def.Weights) != 2 || def.Weights[0] != ParticipantWeight || def.Weights[1] != ParticipantWeight {
		return invalid("definition weights must be [%d, %d]", ParticipantWeight, ParticipantWeight)
	}
	if def.Quorum != RequiredQuorum {
		return invalid("definition quorum must be %d", RequiredQuorum)
	}
	return allocationsFor(room, c.AllocationList)
}

func (o *Operate) normalize() error {
	switch o.Intent {
	case IntentOperate, IntentDeposit, IntentWithdraw:
	case "":
		o.Intent = IntentOperate
	default:
		return invalid("unknown intent %q", o.Intent)
	}
	return normalizeAllocations(o.AllocationList)
}

func (o *Operate) validateFor(room data.Room) error {
	return allocationsFor(room, o.AllocationList)
}

func (c *CloseSession) normalize() error {
	return normalizeAllocations(c.AllocationList)
}

func (c *CloseSession) validateFor(room data.Room) error {
	return allocationsFor(room, c.AllocationList)
}

func normalizeAllocations(allocations []Allocation) error {
	if len(allocations) == 0 {
		return invalid("allocations are empty")
	}

	for i := range allocations {
		a := &allocations[i]
		if !address.IsValid(a.Participant) {
			return invalid("allocation participant %q is not an address", a.Participant)
		}
		a.Participant = address.Normalize(a.Participant)
		a.Asset = strings.ToLower(strings.TrimSpace(a.Asset))
		if a.Asset == "" {
			return invalid("allocation asset is empty")
		}
		if !isUnsignedInteger(a.Amount) {
			return invalid("allocation amount %q is not a non-negative integer", a.Amount)
		}
		a.Amount = a.AmountInt().String()
	}

	return nil
}

func allocationsFor(room data.Room, allocations []Allocation) error {
	seen := make(map[string]struct{}, len(allocations))
	for _, a := range allocations {
		if !address.IsParticipant(room, a.Participant) {
			return invalid("allocation participant %s is not in the room", a.Participant)
		}
		key := a.Participant + "/" + a.Asset
		if _, ok := seen[key]; ok {
			return invalid("duplicate allocation for %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func isUnsignedInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func newAction(kind data.ProposalKind) (Action, error) {
	switch kind {
	case data.ProposalKindCreateSession:
		return &CreateSession{}, nil
	case data.ProposalKindOperate:
		return &Operate{}, nil
	case data.ProposalKindCloseSession:
		return &CloseSession{}, nil
	}
	return nil, invalid("unknown proposal kind %q", kind)
}

// Parse strictly decodes raw into the action of the given kind and normalizes it.
func Parse(kind data.ProposalKind, raw []byte) (Action, error) {
	action, err := newAction(kind)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(action); err != nil {
		return nil, invalid("failed to decode %s payload: %s", kind, err.Error())
	}

	if err := action.normalize(); err != nil {
		return nil, err
	}

	return action, nil
}

// ValidateFor checks the action against the room it is proposed in.
func ValidateFor(action Action, room data.Room) error {
	return action.validateFor(room)
}

// Canonical returns the canonical encoding of the action.
func Canonical(action Action) []byte {
	// Actions hold only strings, numbers and slices of them.
	raw, err := json.Marshal(action)
	if err != nil {
		panic(err)
	}
	return raw
}

// Hash returns the 0x-prefixed keccak256 of the canonical action encoding.
func Hash(action Action) string {
	return crypto.Keccak256Hash(Canonical(action)).Hex()
}

// IntentOf returns the intent of operate actions and an empty intent otherwise.
func IntentOf(action Action) Intent {
	if op, ok := action.(*Operate); ok {
		return op.Intent
	}
	return ""
}
