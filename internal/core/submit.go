package core

import (
	"context"
	"encoding/json"
	goerr "errors"

	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/connectors"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Submit sends a ready proposal to the session service on behalf of actor.
//
// Transient failures leave the proposal ready so the same signatures can be
// resubmitted; the returned error matches ErrExternalServiceTransient.
// Rejections mark the proposal failed and return an error matching
// ErrExternalServiceRejected with the raw service message.
func (s *Service) Submit(ctx context.Context, proposalID, actor string) (*data.Proposal, error) {
	if s.sessions == nil {
		return nil, errors.New("session service is not configured")
	}

	sc, err := s.PrepareSubmit(ctx, proposalID, actor)
	if err != nil {
		return nil, err
	}
	actor = address.Normalize(actor)

	callCtx, cancel := context.WithTimeout(ctx, s.params.SubmitTimeout)
	defer cancel()

	res, err := s.callSession(callCtx, sc)
	if err != nil {
		svcErr := connectors.Classify(err)
		if svcErr.Transient {
			return nil, s.recordRetryable(sc, actor, svcErr)
		}

		if _, err := s.ApplySubmissionResult(ctx, ApplyResultRequest{
			ProposalID: sc.Proposal.ID,
			Actor:      actor,
			Outcome:    data.ProposalStatusFailed,
			Error:      svcErr.Message,
		}); err != nil {
			return nil, errors.Wrap(err, "failed to record rejected submission", logan.F{
				"proposal_id": sc.Proposal.ID,
			})
		}
		return nil, svcErr
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session result")
	}

	return s.ApplySubmissionResult(ctx, ApplyResultRequest{
		ProposalID: sc.Proposal.ID,
		Actor:      actor,
		Outcome:    data.ProposalStatusSubmitted,
		Result:     raw,
	})
}

func (s *Service) callSession(ctx context.Context, sc *SubmissionContext) (*connectors.SessionResult, error) {
	signatures := orderedSignatures(*sc.Room, sc.Proposal.Signatures)

	switch action := sc.Action.(type) {
	case *payload.CreateSession:
		return s.sessions.CreateSession(ctx, connectors.CreateSessionRequest{
			Definition:  action.Definition,
			Allocations: action.AllocationList,
			SessionData: action.SessionData,
			Signatures:  signatures,
		})
	case *payload.Operate:
		return s.sessions.SubmitState(ctx, connectors.SubmitStateRequest{
			SessionID:   sc.Room.SessionID.String,
			Intent:      action.Intent,
			Version:     sc.Version,
			Allocations: action.AllocationList,
			SessionData: action.SessionData,
			Signatures:  signatures,
		})
	case *payload.CloseSession:
		return s.sessions.CloseSession(ctx, connectors.CloseSessionRequest{
			SessionID:   sc.Room.SessionID.String,
			Allocations: action.AllocationList,
			Version:     sc.Version,
			SessionData: action.SessionData,
			Signatures:  signatures,
		})
	}

	return nil, errors.Wrap(ErrInvalidPayload, "unknown action type", logan.F{"kind": sc.Proposal.Kind})
}

func (s *Service) recordRetryable(sc *SubmissionContext, actor string, svcErr *connectors.ServiceError) error {
	err := s.storage.Transaction(func(st data.Storage) error {
		return s.appendEvent(st.EventQ(), sc.Room.ID, sc.Proposal.ID, actor, data.EventProposalSubmitRetryable, map[string]interface{}{
			"error": svcErr.Message,
			"code":  svcErr.Code,
		})
	})
	if err != nil {
		return errors.Wrap(err, "failed to record retryable submission")
	}

	s.log.WithFields(logan.F{
		"proposal_id": sc.Proposal.ID,
		"error":       svcErr.Message,
	}).Warn("submission failed transiently, proposal stays ready")
	s.notify(sc.Room.ID)

	return svcErr
}

// IsRetryable reports whether err leaves the proposal in a state where the
// same submission may be attempted again.
func IsRetryable(err error) bool {
	return goerr.Is(err, ErrExternalServiceTransient)
}
