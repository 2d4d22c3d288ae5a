package core

import (
	"context"

	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/ledger"
	"github.com/rarimo/duo-svc/internal/payload"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// GetProposal returns the proposal, expiring it first if it is stale.
func (s *Service) GetProposal(_ context.Context, id string) (*data.Proposal, error) {
	proposal, err := s.getProposal(id)
	if err != nil {
		return nil, err
	}

	if !proposal.Status.IsActive() || !proposal.IsExpired(s.now()) {
		return proposal, nil
	}

	if _, err := s.expireStale(proposal.RoomID, s.now()); err != nil {
		return nil, err
	}
	return s.getProposal(id)
}

// ListProposals returns the proposals of the room, newest first.
func (s *Service) ListProposals(ctx context.Context, roomID string) ([]data.Proposal, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	proposals, err := s.storage.ProposalQ().ListByRoom(roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list proposals", logan.F{"room_id": roomID})
	}

	now := s.now()
	for _, p := range proposals {
		if p.Status.IsActive() && p.IsExpired(now) {
			if _, err := s.expireStale(roomID, now); err != nil {
				return nil, err
			}

			proposals, err = s.storage.ProposalQ().ListByRoom(roomID)
			if err != nil {
				return nil, errors.Wrap(err, "failed to list proposals", logan.F{"room_id": roomID})
			}
			break
		}
	}

	return proposals, nil
}

// Allocations returns the current allocations of the room derived from its submitted history.
func (s *Service) Allocations(ctx context.Context, roomID string) (ledger.Allocations, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	history, err := s.history(room.ID)
	if err != nil {
		return nil, err
	}

	return ledger.Current(*room, history)
}

// PreviewProposal returns the allocation change the proposal would apply if submitted now.
func (s *Service) PreviewProposal(ctx context.Context, proposalID string) (map[string]ledger.Delta, error) {
	proposal, room, err := s.proposalWithRoom(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	action, err := payload.Parse(proposal.Kind, proposal.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse stored payload", logan.F{"proposal_id": proposal.ID})
	}

	history, err := s.history(room.ID)
	if err != nil {
		return nil, err
	}

	return ledger.Preview(*room, history, action)
}
