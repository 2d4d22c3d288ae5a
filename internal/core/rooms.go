package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/metrics"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type CreateRoomRequest struct {
	Creator      string `json:"creator"`
	Counterparty string `json:"counterparty"`
	Asset        string `json:"asset"`
	Chain        string `json:"chain"`
}

// CreateRoom opens a room between the creator (participant A) and the counterparty (participant B).
func (s *Service) CreateRoom(ctx context.Context, request CreateRoomRequest) (*data.Room, error) {
	if !address.IsValid(request.Creator) || !address.IsValid(request.Counterparty) {
		return nil, ErrInvalidAddress
	}

	creator, counterparty := address.Normalize(request.Creator), address.Normalize(request.Counterparty)
	if creator == counterparty {
		return nil, ErrSameParticipant
	}

	asset := normalizeSymbol(request.Asset)
	if _, ok := s.params.Decimals(asset); !ok {
		return nil, ErrUnsupportedAsset
	}

	chain := normalizeSymbol(request.Chain)
	if !s.params.IsChainAllowed(chain) {
		return nil, ErrUnsupportedChain
	}

	now := s.now()
	room := data.Room{
		ID:           uuid.NewString(),
		ParticipantA: creator,
		ParticipantB: counterparty,
		Chain:        chain,
		Asset:        asset,
		Status:       data.RoomStatusOpen,
		CreatedAt:    now,
	}
	if s.params.RoomTTL > 0 {
		room.ExpiresAt = now.Add(s.params.RoomTTL)
	}

	err := s.storage.Transaction(func(st data.Storage) error {
		if err := st.RoomQ().Insert(&room); err != nil {
			return errors.Wrap(err, "failed to insert room")
		}

		return s.appendEvent(st.EventQ(), room.ID, "", creator, data.EventRoomCreated, map[string]string{
			"participant_a": room.ParticipantA,
			"participant_b": room.ParticipantB,
			"asset":         room.Asset,
			"chain":         room.Chain,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RoomsCreated.Inc()
	s.log.WithFields(logan.F{
		"room_id": room.ID,
		"asset":   room.Asset,
		"chain":   room.Chain,
	}).Info("room created")
	s.notify(room.ID)

	return &room, nil
}

func (s *Service) GetRoom(_ context.Context, id string) (*data.Room, error) {
	room, err := s.storage.RoomQ().RoomByID(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get room", logan.F{"room_id": id})
	}

	if room == nil {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

// ListRooms returns rooms where identity is either participant, newest first.
func (s *Service) ListRooms(_ context.Context, identity string) ([]data.Room, error) {
	if !address.IsValid(identity) {
		return nil, ErrInvalidAddress
	}

	rooms, err := s.storage.RoomQ().ListByParticipant(address.Normalize(identity))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list rooms", logan.F{"participant": identity})
	}

	return rooms, nil
}
