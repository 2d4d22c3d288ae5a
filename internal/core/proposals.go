package core

import (
	"context"
	"database/sql"
	"encoding/json"
	goerr "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/ledger"
	"github.com/rarimo/duo-svc/internal/metrics"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// maxSignAttempts bounds the compare-and-swap retries of a single Sign call.
const maxSignAttempts = 5

const roomClosedReason = "room closed"

var errRevisionConflict = goerr.New("proposal revision changed")

type CreateProposalRequest struct {
	RoomID string            `json:"room_id"`
	Actor  string            `json:"actor"`
	Kind   data.ProposalKind `json:"kind"`
	// Payload is the kind specific action document.
	Payload json.RawMessage `json:"payload"`
	// PayloadHash is optional. When set it must equal the canonical payload hash.
	PayloadHash string `json:"payload_hash,omitempty"`
}

type SignRequest struct {
	ProposalID string `json:"proposal_id"`
	Actor      string `json:"actor"`
	Signature  string `json:"signature"`
}

type SignResult struct {
	Proposal *data.Proposal `json:"proposal"`
	Weight   int64          `json:"weight"`
}

type ApplyResultRequest struct {
	ProposalID string              `json:"proposal_id"`
	Actor      string              `json:"actor"`
	Outcome    data.ProposalStatus `json:"outcome"`
	Result     json.RawMessage     `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// SubmissionContext is everything a submitter needs to call the session service.
type SubmissionContext struct {
	Room     *data.Room
	Proposal *data.Proposal
	Action   payload.Action
	Deltas   map[string]ledger.Delta
	// Version is the session version the submitted state will carry.
	Version uint64
	// Submitter is the only participant allowed to submit. Empty means any participant.
	Submitter string
}

// CreateProposal persists a new pending proposal. Uniqueness of active
// proposals per room and kind is left to the storage constraint.
func (s *Service) CreateProposal(ctx context.Context, request CreateProposalRequest) (*data.Proposal, error) {
	room, err := s.GetRoom(ctx, request.RoomID)
	if err != nil {
		return nil, err
	}

	if room.Status == data.RoomStatusClosed {
		return nil, ErrRoomClosed
	}

	if room.IsExpired(s.now()) {
		return nil, ErrExpired
	}

	if !address.IsParticipant(room, request.Actor) {
		return nil, ErrNotParticipant
	}
	actor := address.Normalize(request.Actor)

	action, err := payload.Parse(request.Kind, request.Payload)
	if err != nil {
		return nil, err
	}

	if err := payload.ValidateFor(action, *room); err != nil {
		return nil, err
	}

	hash := payload.Hash(action)
	if request.PayloadHash != "" && !strings.EqualFold(strings.TrimSpace(request.PayloadHash), hash) {
		return nil, ErrPayloadHashMismatch
	}

	switch request.Kind {
	case data.ProposalKindCreateSession:
		if room.SessionID.Valid {
			return nil, ErrInvalidState
		}
	default:
		if !room.SessionID.Valid {
			return nil, ErrInvalidState
		}
	}

	if _, err := s.expireStale(room.ID, s.now()); err != nil {
		return nil, err
	}

	now := s.now()
	proposal := data.Proposal{
		ID:             uuid.NewString(),
		RoomID:         room.ID,
		Kind:           request.Kind,
		Payload:        payload.Canonical(action),
		PayloadHash:    hash,
		RequiredQuorum: s.params.RequiredQuorum,
		Signatures:     data.Signatures{},
		Status:         data.ProposalStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.params.ProposalTTL),
		UpdatedAt:      now,
	}

	err = s.storage.Transaction(func(st data.Storage) error {
		if err := st.ProposalQ().Insert(&proposal); err != nil {
			if goerr.Is(err, data.ErrUniqueViolation) {
				return ErrDuplicateActiveProposal
			}
			return errors.Wrap(err, "failed to insert proposal")
		}

		return s.appendEvent(st.EventQ(), room.ID, proposal.ID, actor, data.EventProposalCreated, map[string]interface{}{
			"kind":         proposal.Kind,
			"payload_hash": proposal.PayloadHash,
			"expires_at":   proposal.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ProposalTransitions.WithLabelValues(string(proposal.Kind), string(proposal.Status)).Inc()
	s.log.WithFields(logan.F{
		"room_id":     room.ID,
		"proposal_id": proposal.ID,
		"kind":        proposal.Kind,
	}).Info("proposal created")
	s.notify(room.ID)

	return &proposal, nil
}

// Sign verifies the signature against the stored payload hash and records it.
// Signing twice by the same participant changes nothing.
func (s *Service) Sign(ctx context.Context, request SignRequest) (*SignResult, error) {
	proposal, room, err := s.proposalWithRoom(ctx, request.ProposalID)
	if err != nil {
		return nil, err
	}

	if err := s.checkActive(proposal); err != nil {
		return nil, err
	}

	if !address.IsParticipant(room, request.Actor) {
		return nil, ErrNotParticipant
	}
	actor := address.Normalize(request.Actor)
	sig := strings.TrimSpace(request.Signature)

	if err := s.verifier.Verify(actor, proposal.PayloadHash, sig); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxSignAttempts; attempt++ {
		if attempt > 0 {
			proposal, err = s.getProposal(proposal.ID)
			if err != nil {
				return nil, err
			}
			if err := s.checkActive(proposal); err != nil {
				return nil, err
			}
		}

		if _, ok := proposal.Signatures[actor]; ok {
			return &SignResult{Proposal: proposal, Weight: signedWeight(*room, proposal.Signatures)}, nil
		}

		signatures := proposal.Signatures.Clone()
		signatures[actor] = sig
		weight := signedWeight(*room, signatures)

		status := proposal.Status
		if weight >= proposal.RequiredQuorum {
			status = data.ProposalStatusReady
		}

		now := s.now()
		err = s.storage.Transaction(func(st data.Storage) error {
			ok, err := st.ProposalQ().UpdateSignatures(data.SignaturesUpdate{
				ID:               proposal.ID,
				ExpectedRevision: proposal.Revision,
				Signatures:       signatures,
				Status:           status,
				UpdatedAt:        now,
			})
			if err != nil {
				return errors.Wrap(err, "failed to update signatures")
			}
			if !ok {
				return errRevisionConflict
			}

			return s.appendEvent(st.EventQ(), room.ID, proposal.ID, actor, data.EventProposalSigned, map[string]interface{}{
				"weight": weight,
				"status": status,
			})
		})
		if goerr.Is(err, errRevisionConflict) {
			s.log.WithFields(logan.F{
				"proposal_id": proposal.ID,
				"attempt":     attempt,
			}).Debug("signature update lost the race, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		if status != proposal.Status {
			metrics.ProposalTransitions.WithLabelValues(string(proposal.Kind), string(status)).Inc()
		}

		proposal.Signatures = signatures
		proposal.Status = status
		proposal.Revision++
		proposal.UpdatedAt = now

		s.log.WithFields(logan.F{
			"proposal_id": proposal.ID,
			"signer":      actor,
			"weight":      weight,
			"status":      status,
		}).Info("proposal signed")
		s.notify(room.ID)

		return &SignResult{Proposal: proposal, Weight: weight}, nil
	}

	return nil, ErrConcurrentUpdate
}

// PrepareSubmit checks the proposal may be submitted by actor and assembles
// the submission context.
func (s *Service) PrepareSubmit(ctx context.Context, proposalID, actor string) (*SubmissionContext, error) {
	proposal, room, err := s.proposalWithRoom(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if room.Status == data.RoomStatusClosed {
		return nil, ErrRoomClosed
	}

	if err := s.checkActive(proposal); err != nil {
		return nil, err
	}

	if proposal.Status != data.ProposalStatusReady {
		return nil, ErrInvalidState
	}

	if !address.IsParticipant(room, actor) {
		return nil, ErrNotParticipant
	}

	action, err := payload.Parse(proposal.Kind, proposal.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse stored payload", logan.F{"proposal_id": proposal.ID})
	}

	history, err := s.history(room.ID)
	if err != nil {
		return nil, err
	}

	deltas, err := ledger.Preview(*room, history, action)
	if err != nil {
		return nil, err
	}

	res := SubmissionContext{
		Room:     room,
		Proposal: proposal,
		Action:   action,
		Deltas:   deltas,
		Version:  uint64(len(history)) + 1,
	}

	if payload.IntentOf(action) == payload.IntentDeposit {
		increased := ledger.Increased(deltas)
		if len(increased) != 1 {
			return nil, ErrAmbiguousOrMissingDepositor
		}

		res.Submitter = increased[0]
		if !address.Equal(res.Submitter, actor) {
			return nil, ErrNotDesignatedSubmitter
		}
	}

	return &res, nil
}

// ApplySubmissionResult records the outcome of a submission. Only a ready
// proposal accepts an outcome, so a repeated call fails with ErrInvalidState.
func (s *Service) ApplySubmissionResult(ctx context.Context, request ApplyResultRequest) (*data.Proposal, error) {
	if request.Outcome != data.ProposalStatusSubmitted && request.Outcome != data.ProposalStatusFailed {
		return nil, ErrInvalidOutcome
	}

	proposal, room, err := s.proposalWithRoom(ctx, request.ProposalID)
	if err != nil {
		return nil, err
	}

	if !address.IsParticipant(room, request.Actor) {
		return nil, ErrNotParticipant
	}
	actor := address.Normalize(request.Actor)

	if proposal.Status != data.ProposalStatusReady {
		return nil, ErrInvalidState
	}

	var sessionID string
	if request.Outcome == data.ProposalStatusSubmitted && proposal.Kind == data.ProposalKindCreateSession {
		sessionID, err = sessionIDFromResult(request.Result)
		if err != nil {
			return nil, err
		}
	}

	update := data.StatusUpdate{
		ID:        proposal.ID,
		From:      data.ProposalStatusReady,
		To:        request.Outcome,
		Result:    data.NewNullJSON(request.Result),
		UpdatedAt: s.now(),
	}
	if request.Outcome == data.ProposalStatusFailed {
		msg := request.Error
		if msg == "" {
			msg = "submission failed"
		}
		update.Error = sql.NullString{String: msg, Valid: true}
	}

	var cancelled []data.Proposal
	err = s.storage.Transaction(func(st data.Storage) error {
		if request.Outcome == data.ProposalStatusSubmitted {
			// the lock orders this against a concurrent close of the room
			locked, err := st.RoomQ().RoomByIDForUpdate(room.ID)
			if err != nil {
				return errors.Wrap(err, "failed to lock room")
			}
			if locked == nil {
				return ErrRoomNotFound
			}
			if locked.Status == data.RoomStatusClosed {
				return ErrRoomClosed
			}
		}

		ok, err := st.ProposalQ().UpdateStatus(update)
		if err != nil {
			return errors.Wrap(err, "failed to update proposal status")
		}
		if !ok {
			return ErrInvalidState
		}

		if request.Outcome == data.ProposalStatusFailed {
			return s.appendEvent(st.EventQ(), room.ID, proposal.ID, actor, data.EventProposalFailed, map[string]string{
				"error": update.Error.String,
			})
		}

		if err := s.appendEvent(st.EventQ(), room.ID, proposal.ID, actor, data.EventProposalSubmitted, map[string]interface{}{
			"kind":   proposal.Kind,
			"result": json.RawMessage(update.Result.JSON),
		}); err != nil {
			return err
		}

		switch proposal.Kind {
		case data.ProposalKindCreateSession:
			return s.attachSession(st, room.ID, proposal.ID, actor, sessionID)
		case data.ProposalKindCloseSession:
			cancelled, err = s.closeRoom(st, room.ID, proposal.ID, actor)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ProposalTransitions.WithLabelValues(string(proposal.Kind), string(request.Outcome)).Inc()
	for _, p := range cancelled {
		metrics.ProposalTransitions.WithLabelValues(string(p.Kind), string(data.ProposalStatusFailed)).Inc()
	}
	s.log.WithFields(logan.F{
		"proposal_id": proposal.ID,
		"kind":        proposal.Kind,
		"outcome":     request.Outcome,
	}).Info("submission result applied")
	s.notify(room.ID)

	return s.getProposal(proposal.ID)
}

func (s *Service) attachSession(st data.Storage, roomID, proposalID, actor, sessionID string) error {
	ok, err := st.RoomQ().AttachSession(roomID, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to attach session")
	}
	if !ok {
		return ErrInvalidState
	}

	return s.appendEvent(st.EventQ(), roomID, proposalID, actor, data.EventSessionAttached, map[string]string{
		"session_id": sessionID,
	})
}

// closeRoom closes the room and fails the proposals still active in it, since
// no state can be submitted to a closed session.
func (s *Service) closeRoom(st data.Storage, roomID, proposalID, actor string) ([]data.Proposal, error) {
	ok, err := st.RoomQ().Close(roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to close room")
	}
	if !ok {
		return nil, ErrRoomClosed
	}

	if err := s.appendEvent(st.EventQ(), roomID, proposalID, actor, data.EventRoomClosed, struct{}{}); err != nil {
		return nil, err
	}

	cancelled, err := st.ProposalQ().FailActive(roomID, roomClosedReason, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "failed to cancel active proposals", logan.F{"room_id": roomID})
	}

	for _, p := range cancelled {
		err := s.appendEvent(st.EventQ(), roomID, p.ID, SystemActor, data.EventProposalFailed, map[string]string{
			"error": roomClosedReason,
		})
		if err != nil {
			return nil, err
		}
	}
	return cancelled, nil
}

func sessionIDFromResult(result json.RawMessage) (string, error) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if len(result) == 0 || json.Unmarshal(result, &body) != nil || body.SessionID == "" {
		return "", &payload.ValidationError{Reason: "submission result carries no session_id"}
	}
	return body.SessionID, nil
}

// SweepExpired expires every active proposal past its expiry. Running it
// concurrently or repeatedly is safe: each proposal transitions at most once.
func (s *Service) SweepExpired(_ context.Context) (int, error) {
	expired, err := s.expireStale("", s.now())
	return len(expired), err
}

// expireStale expires active proposals of the room (or of all rooms when
// roomID is empty) and records an event for each of them.
func (s *Service) expireStale(roomID string, now time.Time) ([]data.Proposal, error) {
	var expired []data.Proposal
	err := s.storage.Transaction(func(st data.Storage) error {
		var err error
		expired, err = st.ProposalQ().ExpireActive(roomID, now)
		if err != nil {
			return errors.Wrap(err, "failed to expire proposals")
		}

		for _, p := range expired {
			err := s.appendEvent(st.EventQ(), p.RoomID, p.ID, SystemActor, data.EventProposalExpired, map[string]interface{}{
				"kind":       p.Kind,
				"expires_at": p.ExpiresAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rooms := make([]string, 0, len(expired))
	for _, p := range expired {
		metrics.ProposalTransitions.WithLabelValues(string(p.Kind), string(data.ProposalStatusExpired)).Inc()
		rooms = append(rooms, p.RoomID)
	}
	if len(expired) > 0 {
		s.log.WithFields(logan.F{
			"room_id": roomID,
			"count":   len(expired),
		}).Info("proposals expired")
		s.notify(rooms...)
	}

	return expired, nil
}

// checkActive fails for terminal proposals and expires stale active ones.
// Expired proposals always report ErrExpired so callers know to start over.
func (s *Service) checkActive(proposal *data.Proposal) error {
	if proposal.Status == data.ProposalStatusExpired {
		return ErrExpired
	}
	if !proposal.Status.IsActive() {
		return ErrInvalidState
	}

	now := s.now()
	if proposal.IsExpired(now) {
		if _, err := s.expireStale(proposal.RoomID, now); err != nil {
			return err
		}
		return ErrExpired
	}

	return nil
}

func (s *Service) getProposal(id string) (*data.Proposal, error) {
	proposal, err := s.storage.ProposalQ().ProposalByID(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get proposal", logan.F{"proposal_id": id})
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}

func (s *Service) proposalWithRoom(ctx context.Context, id string) (*data.Proposal, *data.Room, error) {
	proposal, err := s.getProposal(id)
	if err != nil {
		return nil, nil, err
	}

	room, err := s.GetRoom(ctx, proposal.RoomID)
	if err != nil {
		return nil, nil, err
	}

	return proposal, room, nil
}

func (s *Service) history(roomID string) ([]data.Proposal, error) {
	history, err := s.storage.ProposalQ().SubmittedHistory(roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get submitted history", logan.F{"room_id": roomID})
	}
	return history, nil
}
