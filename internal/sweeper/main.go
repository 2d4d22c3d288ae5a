package sweeper

import (
	"context"
	"time"

	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
	"gitlab.com/distributed_lab/running"
)

const runnerName = "expiry-sweeper"

type Expirer interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper periodically expires active proposals past their expiry so that
// stale proposals do not wait for the next read to be noticed.
type Sweeper struct {
	expirer Expirer
	period  time.Duration
	log     *logan.Entry
}

func New(expirer Expirer, period time.Duration, log *logan.Entry) *Sweeper {
	return &Sweeper{
		expirer: expirer,
		period:  period,
		log:     log.WithField("runner", runnerName),
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.WithField("period", s.period.String()).Info("starting sweeper")
	running.WithBackOff(ctx, s.log, runnerName, s.sweep, s.period, s.period, 10*s.period)
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) error {
	count, err := s.expirer.SweepExpired(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to sweep expired proposals")
	}

	if count > 0 {
		s.log.WithField("expired", count).Info("expired stale proposals")
	}
	return nil
}
