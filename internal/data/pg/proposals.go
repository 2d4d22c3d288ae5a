package pg

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rarimo/duo-svc/internal/data"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type proposalQ struct {
	db *pgdb.DB
}

func activeStatuses() sq.Eq {
	return sq.Eq{"status": data.ActiveStatuses}
}

func (q *proposalQ) Insert(proposal *data.Proposal) error {
	stmt := builder.Insert(proposalsTable).SetMap(map[string]interface{}{
		"id":              proposal.ID,
		"room_id":         proposal.RoomID,
		"kind":            proposal.Kind,
		"payload":         proposal.Payload,
		"payload_hash":    proposal.PayloadHash,
		"required_quorum": proposal.RequiredQuorum,
		"signatures":      proposal.Signatures,
		"revision":        proposal.Revision,
		"status":          proposal.Status,
		"result":          proposal.Result,
		"error":           proposal.Error,
		"created_at":      proposal.CreatedAt,
		"expires_at":      proposal.ExpiresAt,
		"updated_at":      proposal.UpdatedAt,
	})

	if err := q.db.Exec(stmt); err != nil {
		if isUniqueViolation(err) {
			return data.ErrUniqueViolation
		}
		return errors.Wrap(err, "failed to insert proposal", logan.F{
			"room_id": proposal.RoomID,
			"kind":    proposal.Kind,
		})
	}
	return nil
}

func (q *proposalQ) ProposalByID(id string) (*data.Proposal, error) {
	var res data.Proposal
	err := q.db.Get(&res, builder.Select("*").From(proposalsTable).Where(sq.Eq{"id": id}))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select proposal", logan.F{"proposal_id": id})
	}
	return &res, nil
}

func (q *proposalQ) ListByRoom(roomID string) ([]data.Proposal, error) {
	var res []data.Proposal
	stmt := builder.Select("*").From(proposalsTable).
		Where(sq.Eq{"room_id": roomID}).
		OrderBy("created_at DESC", "id DESC")

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to select proposals", logan.F{"room_id": roomID})
	}
	return res, nil
}

func (q *proposalQ) SubmittedHistory(roomID string) ([]data.Proposal, error) {
	var res []data.Proposal
	stmt := builder.Select("*").From(proposalsTable).
		Where(sq.Eq{"room_id": roomID, "status": data.ProposalStatusSubmitted}).
		OrderBy("updated_at ASC", "created_at ASC")

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to select submitted proposals", logan.F{"room_id": roomID})
	}
	return res, nil
}

// UpdateSignatures swaps the signature map only if nobody changed the proposal
// since it was read at ExpectedRevision.
func (q *proposalQ) UpdateSignatures(update data.SignaturesUpdate) (bool, error) {
	var res []data.Proposal
	stmt := builder.Update(proposalsTable).
		SetMap(map[string]interface{}{
			"signatures": update.Signatures,
			"status":     update.Status,
			"revision":   sq.Expr("revision + 1"),
			"updated_at": update.UpdatedAt,
		}).
		Where(sq.Eq{"id": update.ID, "revision": update.ExpectedRevision}).
		Where(activeStatuses()).
		Suffix("RETURNING *")

	if err := q.db.Select(&res, stmt); err != nil {
		return false, errors.Wrap(err, "failed to update signatures", logan.F{"proposal_id": update.ID})
	}
	return len(res) > 0, nil
}

func (q *proposalQ) UpdateStatus(update data.StatusUpdate) (bool, error) {
	var res []data.Proposal
	stmt := builder.Update(proposalsTable).
		SetMap(map[string]interface{}{
			"status":     update.To,
			"result":     update.Result,
			"error":      update.Error,
			"revision":   sq.Expr("revision + 1"),
			"updated_at": update.UpdatedAt,
		}).
		Where(sq.Eq{"id": update.ID, "status": update.From}).
		Suffix("RETURNING *")

	if err := q.db.Select(&res, stmt); err != nil {
		return false, errors.Wrap(err, "failed to update proposal status", logan.F{
			"proposal_id": update.ID,
			"to":          update.To,
		})
	}
	return len(res) > 0, nil
}

func (q *proposalQ) ExpireActive(roomID string, now time.Time) ([]data.Proposal, error) {
	var res []data.Proposal
	stmt := builder.Update(proposalsTable).
		SetMap(map[string]interface{}{
			"status":     data.ProposalStatusExpired,
			"revision":   sq.Expr("revision + 1"),
			"updated_at": now,
		}).
		Where(activeStatuses()).
		Where(sq.Lt{"expires_at": now}).
		Suffix("RETURNING *")

	if roomID != "" {
		stmt = stmt.Where(sq.Eq{"room_id": roomID})
	}

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to expire proposals", logan.F{"room_id": roomID})
	}
	return res, nil
}

func (q *proposalQ) FailActive(roomID, reason string, now time.Time) ([]data.Proposal, error) {
	var res []data.Proposal
	stmt := builder.Update(proposalsTable).
		SetMap(map[string]interface{}{
			"status":     data.ProposalStatusFailed,
			"error":      reason,
			"revision":   sq.Expr("revision + 1"),
			"updated_at": now,
		}).
		Where(activeStatuses()).
		Where(sq.Eq{"room_id": roomID}).
		Suffix("RETURNING *")

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to fail active proposals", logan.F{"room_id": roomID})
	}
	return res, nil
}
