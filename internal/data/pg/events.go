package pg

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/rarimo/duo-svc/internal/data"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type eventQ struct {
	db *pgdb.DB
}

func (q *eventQ) Insert(event *data.Event) error {
	stmt := builder.Insert(eventsTable).SetMap(map[string]interface{}{
		"room_id":     event.RoomID,
		"proposal_id": event.ProposalID,
		"actor":       event.Actor,
		"type":        event.Type,
		"payload":     event.Payload,
		"created_at":  event.CreatedAt,
	}).Suffix("RETURNING id")

	if err := q.db.Get(&event.ID, stmt); err != nil {
		return errors.Wrap(err, "failed to insert event", logan.F{
			"room_id": event.RoomID,
			"type":    event.Type,
		})
	}
	return nil
}

func (q *eventQ) ListByRoom(roomID string, limit uint64) ([]data.Event, error) {
	var res []data.Event
	stmt := builder.Select("*").From(eventsTable).
		Where(sq.Eq{"room_id": roomID}).
		OrderBy("created_at DESC", "id DESC")

	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to select events", logan.F{"room_id": roomID})
	}
	return res, nil
}
