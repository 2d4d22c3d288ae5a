package core

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rarimo/duo-svc/internal/data"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const (
	// SystemActor is recorded for time driven transitions.
	SystemActor = "system"

	DefaultEventsLimit = 100
	MaxEventsLimit     = 1000
)

func (s *Service) appendEvent(q data.EventQ, roomID, proposalID, actor string, eventType data.EventType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event payload")
	}

	event := data.Event{
		RoomID:     roomID,
		ProposalID: sql.NullString{String: proposalID, Valid: proposalID != ""},
		Actor:      actor,
		Type:       eventType,
		Payload:    raw,
		CreatedAt:  s.now(),
	}

	if err := q.Insert(&event); err != nil {
		return errors.Wrap(err, "failed to append event", logan.F{
			"room_id": roomID,
			"type":    eventType,
		})
	}

	return nil
}

// ListEvents returns the newest events of the room first.
func (s *Service) ListEvents(ctx context.Context, roomID string, limit uint64) ([]data.Event, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	switch {
	case limit == 0:
		limit = DefaultEventsLimit
	case limit > MaxEventsLimit:
		limit = MaxEventsLimit
	}

	events, err := s.storage.EventQ().ListByRoom(roomID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events", logan.F{"room_id": roomID})
	}
	return events, nil
}
