package pg

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/rarimo/duo-svc/internal/data"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type roomQ struct {
	db *pgdb.DB
}

func (q *roomQ) Insert(room *data.Room) error {
	stmt := builder.Insert(roomsTable).SetMap(map[string]interface{}{
		"id":            room.ID,
		"participant_a": room.ParticipantA,
		"participant_b": room.ParticipantB,
		"chain":         room.Chain,
		"asset":         room.Asset,
		"status":        room.Status,
		"session_id":    room.SessionID,
		"created_at":    room.CreatedAt,
		"expires_at":    room.ExpiresAt,
	})

	if err := q.db.Exec(stmt); err != nil {
		if isUniqueViolation(err) {
			return data.ErrUniqueViolation
		}
		return errors.Wrap(err, "failed to insert room", logan.F{"room_id": room.ID})
	}
	return nil
}

func (q *roomQ) RoomByID(id string) (*data.Room, error) {
	var res data.Room
	err := q.db.Get(&res, builder.Select("*").From(roomsTable).Where(sq.Eq{"id": id}))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to select room", logan.F{"room_id": id})
	}
	return &res, nil
}

func (q *roomQ) RoomByIDForUpdate(id string) (*data.Room, error) {
	var res data.Room
	err := q.db.Get(&res, builder.Select("*").From(roomsTable).Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock room", logan.F{"room_id": id})
	}
	return &res, nil
}

func (q *roomQ) ListByParticipant(participant string) ([]data.Room, error) {
	var res []data.Room
	stmt := builder.Select("*").From(roomsTable).
		Where(sq.Or{sq.Eq{"participant_a": participant}, sq.Eq{"participant_b": participant}}).
		OrderBy("created_at DESC", "id DESC")

	if err := q.db.Select(&res, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to select rooms", logan.F{"participant": participant})
	}
	return res, nil
}

func (q *roomQ) AttachSession(id, sessionID string) (bool, error) {
	var res []data.Room
	stmt := builder.Update(roomsTable).
		Set("session_id", sessionID).
		Where(sq.Eq{"id": id, "session_id": nil}).
		Suffix("RETURNING *")

	if err := q.db.Select(&res, stmt); err != nil {
		return false, errors.Wrap(err, "failed to attach session", logan.F{"room_id": id})
	}
	return len(res) > 0, nil
}

func (q *roomQ) Close(id string) (bool, error) {
	var res []data.Room
	stmt := builder.Update(roomsTable).
		Set("status", data.RoomStatusClosed).
		Where(sq.Eq{"id": id, "status": data.RoomStatusOpen}).
		Suffix("RETURNING *")

	if err := q.db.Select(&res, stmt); err != nil {
		return false, errors.Wrap(err, "failed to close room", logan.F{"room_id": id})
	}
	return len(res) > 0, nil
}
