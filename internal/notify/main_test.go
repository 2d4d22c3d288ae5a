package notify

import (
	goerr "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/distributed_lab/logan/v3"
)

type recorder struct {
	mu    sync.Mutex
	rooms []string
}

func (r *recorder) notify(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
	return nil
}

func TestHubDeliversByRoom(t *testing.T) {
	hub := NewHub(logan.New())

	all, first := &recorder{}, &recorder{}
	hub.Subscribe("all", AllRooms, all.notify)
	hub.Subscribe("first", "room-1", first.notify)

	hub.Notify("room-1")
	hub.Notify("room-2")
	hub.Notify("room-1")

	assert.Equal(t, []string{"room-1", "room-2", "room-1"}, all.rooms)
	assert.Equal(t, []string{"room-1", "room-1"}, first.rooms)

	hub.Unsubscribe("first")
	hub.Notify("room-1")
	assert.Len(t, first.rooms, 2)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHubToleratesFailingSubscribers(t *testing.T) {
	hub := NewHub(logan.New())

	ok := &recorder{}
	hub.Subscribe("broken", AllRooms, func(string) error { return goerr.New("connection gone") })
	hub.Subscribe("ok", AllRooms, ok.notify)

	assert.NotPanics(t, func() { hub.Notify("room-1") })
	assert.Equal(t, []string{"room-1"}, ok.rooms)
}

func TestHubWithoutSubscribers(t *testing.T) {
	hub := NewHub(logan.New())
	assert.NotPanics(t, func() { hub.Notify("room-1") })
}
