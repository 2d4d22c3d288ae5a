package core

import (
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/rarimo/duo-svc/internal/address"
	"github.com/rarimo/duo-svc/internal/data"
)

// memStore keeps rows the way the postgres schema does, including the partial
// unique index on active proposals and the conditional updates.
type memStore struct {
	mu sync.Mutex

	rooms         map[string]data.Room
	roomOrder     []string
	proposals     map[string]data.Proposal
	proposalOrder []string
	events        []data.Event

	// beforeTx runs at the start of every transaction, outside of its rollback scope.
	beforeTx func(st *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		rooms:     make(map[string]data.Room),
		proposals: make(map[string]data.Proposal),
	}
}

type memSnapshot struct {
	rooms         map[string]data.Room
	roomOrder     []string
	proposals     map[string]data.Proposal
	proposalOrder []string
	events        []data.Event
}

func (m *memStore) snapshot() memSnapshot {
	res := memSnapshot{
		rooms:         make(map[string]data.Room, len(m.rooms)),
		roomOrder:     append([]string(nil), m.roomOrder...),
		proposals:     make(map[string]data.Proposal, len(m.proposals)),
		proposalOrder: append([]string(nil), m.proposalOrder...),
		events:        append([]data.Event(nil), m.events...),
	}
	for k, v := range m.rooms {
		res.rooms[k] = v
	}
	for k, v := range m.proposals {
		res.proposals[k] = v
	}
	return res
}

func (m *memStore) restore(s memSnapshot) {
	m.rooms = s.rooms
	m.roomOrder = s.roomOrder
	m.proposals = s.proposals
	m.proposalOrder = s.proposalOrder
	m.events = s.events
}

// memStorage implements data.Storage. Inside a transaction the store lock is
// already held, so queries skip locking.
type memStorage struct {
	store *memStore
	inTx  bool
}

var _ data.Storage = &memStorage{}

func newMemStorage() *memStorage {
	return &memStorage{store: newMemStore()}
}

func (s *memStorage) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.store.mu.Lock()
	return s.store.mu.Unlock
}

func (s *memStorage) RoomQ() data.RoomQ         { return &memRoomQ{s} }
func (s *memStorage) ProposalQ() data.ProposalQ { return &memProposalQ{s} }
func (s *memStorage) EventQ() data.EventQ       { return &memEventQ{s} }

func (s *memStorage) Transaction(fn func(s data.Storage) error) error {
	if s.inTx {
		return fn(s)
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if s.store.beforeTx != nil {
		s.store.beforeTx(s.store)
	}

	snapshot := s.store.snapshot()
	if err := fn(&memStorage{store: s.store, inTx: true}); err != nil {
		s.store.restore(snapshot)
		return err
	}
	return nil
}

func cloneProposal(p data.Proposal) data.Proposal {
	p.Signatures = p.Signatures.Clone()
	p.Payload = append(data.JSON(nil), p.Payload...)
	return p
}

type memRoomQ struct{ s *memStorage }

func (q *memRoomQ) Insert(room *data.Room) error {
	defer q.s.lock()()
	st := q.s.store

	if _, ok := st.rooms[room.ID]; ok {
		return data.ErrUniqueViolation
	}
	st.rooms[room.ID] = *room
	st.roomOrder = append(st.roomOrder, room.ID)
	return nil
}

func (q *memRoomQ) RoomByID(id string) (*data.Room, error) {
	defer q.s.lock()()

	room, ok := q.s.store.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

// RoomByIDForUpdate needs no row lock: a transaction holds the whole store.
func (q *memRoomQ) RoomByIDForUpdate(id string) (*data.Room, error) {
	return q.RoomByID(id)
}

func (q *memRoomQ) ListByParticipant(participant string) ([]data.Room, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Room
	for i := len(st.roomOrder) - 1; i >= 0; i-- {
		room := st.rooms[st.roomOrder[i]]
		if address.IsParticipant(room, participant) {
			res = append(res, room)
		}
	}
	return res, nil
}

func (q *memRoomQ) AttachSession(id, sessionID string) (bool, error) {
	defer q.s.lock()()
	st := q.s.store

	room, ok := st.rooms[id]
	if !ok || room.SessionID.Valid {
		return false, nil
	}
	room.SessionID.String, room.SessionID.Valid = sessionID, true
	st.rooms[id] = room
	return true, nil
}

func (q *memRoomQ) Close(id string) (bool, error) {
	defer q.s.lock()()
	st := q.s.store

	room, ok := st.rooms[id]
	if !ok || room.Status != data.RoomStatusOpen {
		return false, nil
	}
	room.Status = data.RoomStatusClosed
	st.rooms[id] = room
	return true, nil
}

type memProposalQ struct{ s *memStorage }

func (q *memProposalQ) Insert(proposal *data.Proposal) error {
	defer q.s.lock()()
	st := q.s.store

	if _, ok := st.proposals[proposal.ID]; ok {
		return data.ErrUniqueViolation
	}
	for _, p := range st.proposals {
		if p.RoomID == proposal.RoomID && p.Kind == proposal.Kind && p.Status.IsActive() {
			return data.ErrUniqueViolation
		}
	}

	st.proposals[proposal.ID] = cloneProposal(*proposal)
	st.proposalOrder = append(st.proposalOrder, proposal.ID)
	return nil
}

func (q *memProposalQ) ProposalByID(id string) (*data.Proposal, error) {
	defer q.s.lock()()

	p, ok := q.s.store.proposals[id]
	if !ok {
		return nil, nil
	}
	res := cloneProposal(p)
	return &res, nil
}

func (q *memProposalQ) ListByRoom(roomID string) ([]data.Proposal, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Proposal
	for i := len(st.proposalOrder) - 1; i >= 0; i-- {
		p := st.proposals[st.proposalOrder[i]]
		if p.RoomID == roomID {
			res = append(res, cloneProposal(p))
		}
	}
	return res, nil
}

func (q *memProposalQ) SubmittedHistory(roomID string) ([]data.Proposal, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Proposal
	for _, id := range st.proposalOrder {
		p := st.proposals[id]
		if p.RoomID == roomID && p.Status == data.ProposalStatusSubmitted {
			res = append(res, cloneProposal(p))
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UpdatedAt.Before(res[j].UpdatedAt)
	})
	return res, nil
}

func (q *memProposalQ) UpdateSignatures(update data.SignaturesUpdate) (bool, error) {
	defer q.s.lock()()
	st := q.s.store

	p, ok := st.proposals[update.ID]
	if !ok || p.Revision != update.ExpectedRevision || !p.Status.IsActive() {
		return false, nil
	}

	p.Signatures = update.Signatures.Clone()
	p.Status = update.Status
	p.Revision++
	p.UpdatedAt = update.UpdatedAt
	st.proposals[p.ID] = p
	return true, nil
}

func (q *memProposalQ) UpdateStatus(update data.StatusUpdate) (bool, error) {
	defer q.s.lock()()
	st := q.s.store

	p, ok := st.proposals[update.ID]
	if !ok || p.Status != update.From {
		return false, nil
	}

	p.Status = update.To
	p.Result = update.Result
	p.Error = update.Error
	p.Revision++
	p.UpdatedAt = update.UpdatedAt
	st.proposals[p.ID] = p
	return true, nil
}

func (q *memProposalQ) ExpireActive(roomID string, now time.Time) ([]data.Proposal, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Proposal
	for _, id := range st.proposalOrder {
		p := st.proposals[id]
		if roomID != "" && p.RoomID != roomID {
			continue
		}
		if !p.Status.IsActive() || !p.ExpiresAt.Before(now) {
			continue
		}

		p.Status = data.ProposalStatusExpired
		p.Revision++
		p.UpdatedAt = now
		st.proposals[id] = p
		res = append(res, cloneProposal(p))
	}
	return res, nil
}

func (q *memProposalQ) FailActive(roomID, reason string, now time.Time) ([]data.Proposal, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Proposal
	for _, id := range st.proposalOrder {
		p := st.proposals[id]
		if p.RoomID != roomID || !p.Status.IsActive() {
			continue
		}

		p.Status = data.ProposalStatusFailed
		p.Error = sql.NullString{String: reason, Valid: true}
		p.Revision++
		p.UpdatedAt = now
		st.proposals[id] = p
		res = append(res, cloneProposal(p))
	}
	return res, nil
}

type memEventQ struct{ s *memStorage }

func (q *memEventQ) Insert(event *data.Event) error {
	defer q.s.lock()()
	st := q.s.store

	event.ID = int64(len(st.events)) + 1
	st.events = append(st.events, *event)
	return nil
}

func (q *memEventQ) ListByRoom(roomID string, limit uint64) ([]data.Event, error) {
	defer q.s.lock()()
	st := q.s.store

	var res []data.Event
	for i := len(st.events) - 1; i >= 0 && uint64(len(res)) < limit; i-- {
		if st.events[i].RoomID == roomID {
			res = append(res, st.events[i])
		}
	}
	return res, nil
}
