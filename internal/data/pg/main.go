package pg

import (
	"database/sql"
	goerr "errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/rarimo/duo-svc/internal/data"
	"gitlab.com/distributed_lab/kit/pgdb"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const (
	roomsTable     = "rooms"
	proposalsTable = "proposals"
	eventsTable    = "events"

	uniqueViolationCode = "23505"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Storage is the postgres implementation of data.Storage.
type Storage struct {
	db *pgdb.DB
}

var _ data.Storage = &Storage{}

func New(db *pgdb.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) RoomQ() data.RoomQ {
	return &roomQ{db: s.db}
}

func (s *Storage) ProposalQ() data.ProposalQ {
	return &proposalQ{db: s.db}
}

func (s *Storage) EventQ() data.EventQ {
	return &eventQ{db: s.db}
}

// Transaction runs fn atomically. The error returned by fn is passed through
// unchanged so callers can match domain errors.
func (s *Storage) Transaction(fn func(s data.Storage) error) error {
	db := s.db.Clone()

	var fnErr error
	err := db.Transaction(func() error {
		fnErr = fn(&Storage{db: db})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if goerr.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	if cause, ok := errors.Cause(err).(*pq.Error); ok {
		return cause.Code == uniqueViolationCode
	}
	return false
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows || goerr.Is(err, sql.ErrNoRows) || errors.Cause(err) == sql.ErrNoRows
}
