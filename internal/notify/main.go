package notify

import (
	"sync"

	"github.com/rarimo/duo-svc/internal/metrics"
	"gitlab.com/distributed_lab/logan/v3"
)

// AllRooms subscribes to changes of every room.
const AllRooms = ""

type RoomNotifier func(roomID string) error

type subscription struct {
	roomID string
	f      RoomNotifier
}

// Hub fans "room changed" signals out to subscribers. Delivery is best effort:
// a failing subscriber is logged and never blocks the others.
type Hub struct {
	mu       sync.RWMutex
	toNotify map[string]subscription
	log      *logan.Entry
}

func NewHub(log *logan.Entry) *Hub {
	return &Hub{
		toNotify: make(map[string]subscription),
		log:      log,
	}
}

// Subscribe registers f under name for changes of roomID. Subscribing with a
// name already in use replaces the previous subscription.
func (h *Hub) Subscribe(name, roomID string, f RoomNotifier) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.toNotify[name] = subscription{roomID: roomID, f: f}
}

func (h *Hub) Unsubscribe(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.toNotify, name)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.toNotify)
}

func (h *Hub) Notify(roomID string) {
	h.mu.RLock()
	targets := make(map[string]RoomNotifier, len(h.toNotify))
	for name, sub := range h.toNotify {
		if sub.roomID == AllRooms || sub.roomID == roomID {
			targets[name] = sub.f
		}
	}
	h.mu.RUnlock()

	for name, f := range targets {
		if err := f(roomID); err != nil {
			h.log.WithError(err).WithFields(logan.F{
				"subscriber": name,
				"room_id":    roomID,
			}).Error("failed to notify about room change")
			continue
		}
		metrics.Notifications.Inc()
	}
}
