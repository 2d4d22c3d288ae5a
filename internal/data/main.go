package data

import (
	"database/sql"
	goerr "errors"
	"time"
)

// ErrUniqueViolation is returned by inserts rejected by a uniqueness constraint.
var ErrUniqueViolation = goerr.New("unique constraint violation")

type RoomStatus string

const (
	RoomStatusOpen   RoomStatus = "open"
	RoomStatusClosed RoomStatus = "closed"
)

type ProposalKind string

const (
	ProposalKindCreateSession ProposalKind = "create_session"
	ProposalKindOperate       ProposalKind = "operate"
	ProposalKindCloseSession  ProposalKind = "close_session"
)

func (k ProposalKind) IsValid() bool {
	switch k {
	case ProposalKindCreateSession, ProposalKindOperate, ProposalKindCloseSession:
		return true
	}
	return false
}

type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusReady     ProposalStatus = "ready"
	ProposalStatusSubmitted ProposalStatus = "submitted"
	ProposalStatusExpired   ProposalStatus = "expired"
	ProposalStatusFailed    ProposalStatus = "failed"
)

// IsActive reports whether the status still accepts signatures or submission.
func (s ProposalStatus) IsActive() bool {
	return s == ProposalStatusPending || s == ProposalStatusReady
}

func (s ProposalStatus) IsTerminal() bool {
	return !s.IsActive()
}

// ActiveStatuses are the statuses covered by the (room_id, kind) uniqueness constraint.
var ActiveStatuses = []ProposalStatus{ProposalStatusPending, ProposalStatusReady}

type EventType string

const (
	EventRoomCreated             EventType = "room_created"
	EventProposalCreated         EventType = "proposal_created"
	EventProposalSigned          EventType = "proposal_signed"
	EventProposalSubmitted       EventType = "proposal_submitted"
	EventProposalFailed          EventType = "proposal_failed"
	EventProposalExpired         EventType = "proposal_expired"
	EventProposalSubmitRetryable EventType = "proposal_submit_retryable"
	EventSessionAttached         EventType = "session_attached"
	EventRoomClosed              EventType = "room_closed"
)

type Room struct {
	ID           string         `db:"id"`
	ParticipantA string         `db:"participant_a"`
	ParticipantB string         `db:"participant_b"`
	Chain        string         `db:"chain"`
	Asset        string         `db:"asset"`
	Status       RoomStatus     `db:"status"`
	SessionID    sql.NullString `db:"session_id"`
	CreatedAt    time.Time      `db:"created_at"`
	ExpiresAt    time.Time      `db:"expires_at"`
}

// Participants returns the ordered pair of room participants.
func (r Room) Participants() (string, string) {
	return r.ParticipantA, r.ParticipantB
}

func (r Room) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

type Proposal struct {
	ID             string         `db:"id"`
	RoomID         string         `db:"room_id"`
	Kind           ProposalKind   `db:"kind"`
	Payload        JSON           `db:"payload"`
	PayloadHash    string         `db:"payload_hash"`
	RequiredQuorum int64          `db:"required_quorum"`
	Signatures     Signatures     `db:"signatures"`
	Revision       int64          `db:"revision"`
	Status         ProposalStatus `db:"status"`
	Result         NullJSON       `db:"result"`
	Error          sql.NullString `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
	ExpiresAt      time.Time      `db:"expires_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (p Proposal) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type Event struct {
	ID         int64          `db:"id"`
	RoomID     string         `db:"room_id"`
	ProposalID sql.NullString `db:"proposal_id"`
	Actor      string         `db:"actor"`
	Type       EventType      `db:"type"`
	Payload    JSON           `db:"payload"`
	CreatedAt  time.Time      `db:"created_at"`
}

// Storage groups the query interfaces of the service. Implementations must
// make Transaction atomic across all queries obtained from the passed Storage.
type Storage interface {
	RoomQ() RoomQ
	ProposalQ() ProposalQ
	EventQ() EventQ
	Transaction(fn func(s Storage) error) error
}

type RoomQ interface {
	Insert(room *Room) error
	RoomByID(id string) (*Room, error)
	// RoomByIDForUpdate locks the room row until the transaction ends.
	RoomByIDForUpdate(id string) (*Room, error)
	ListByParticipant(participant string) ([]Room, error)
	// AttachSession sets the session id only while the room has none.
	AttachSession(id, sessionID string) (bool, error)
	Close(id string) (bool, error)
}

// SignaturesUpdate is a compare-and-swap request on a proposal revision.
type SignaturesUpdate struct {
	ID               string
	ExpectedRevision int64
	Signatures       Signatures
	Status           ProposalStatus
	UpdatedAt        time.Time
}

// StatusUpdate transitions a proposal only when its current status is From.
type StatusUpdate struct {
	ID        string
	From      ProposalStatus
	To        ProposalStatus
	Result    NullJSON
	Error     sql.NullString
	UpdatedAt time.Time
}

type ProposalQ interface {
	// Insert must fail with ErrUniqueViolation when an active proposal of the
	// same kind already exists for the room.
	Insert(proposal *Proposal) error
	ProposalByID(id string) (*Proposal, error)
	ListByRoom(roomID string) ([]Proposal, error)
	// SubmittedHistory returns submitted proposals of the room, oldest first.
	SubmittedHistory(roomID string) ([]Proposal, error)
	UpdateSignatures(update SignaturesUpdate) (bool, error)
	UpdateStatus(update StatusUpdate) (bool, error)
	// ExpireActive marks active proposals with expires_at before now as expired
	// and returns them. An empty roomID covers all rooms.
	ExpireActive(roomID string, now time.Time) ([]Proposal, error)
	// FailActive marks every active proposal of the room as failed with reason.
	FailActive(roomID, reason string, now time.Time) ([]Proposal, error)
}

type EventQ interface {
	Insert(event *Event) error
	ListByRoom(roomID string, limit uint64) ([]Event, error)
}
