package core

import (
	"time"

	"github.com/rarimo/duo-svc/internal/connectors"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/payload"
	"github.com/rarimo/duo-svc/internal/signature"
	"gitlab.com/distributed_lab/logan/v3"
)

// Notifier receives "something changed in the room" signals. Delivery is best effort.
type Notifier interface {
	Notify(roomID string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

// Service is the proposal quorum engine. It keeps no authoritative state in
// memory: every operation reads and conditionally writes through data.Storage.
type Service struct {
	storage  data.Storage
	verifier signature.Verifier
	sessions connectors.SessionService
	notifier Notifier
	params   Params
	log      *logan.Entry
	now      func() time.Time
}

func New(
	storage data.Storage,
	verifier signature.Verifier,
	sessions connectors.SessionService,
	notifier Notifier,
	params Params,
	log *logan.Entry,
) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}

	if params.RequiredQuorum != 0 && params.RequiredQuorum != payload.RequiredQuorum {
		log.WithFields(logan.F{
			"configured": params.RequiredQuorum,
			"used":       payload.RequiredQuorum,
		}).Warn("required quorum is fixed, ignoring configured value")
	}

	return &Service{
		storage:  storage,
		verifier: verifier,
		sessions: sessions,
		notifier: notifier,
		params:   params.withDefaults(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests and the sweeper.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Params() Params {
	return s.params
}

func (s *Service) notify(roomIDs ...string) {
	seen := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.notifier.Notify(id)
	}
}
