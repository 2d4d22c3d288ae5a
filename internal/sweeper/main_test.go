package sweeper

import (
	"context"
	goerr "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/distributed_lab/logan/v3"
	"go.uber.org/goleak"
)

type countingExpirer struct {
	calls    int32
	failures int32
}

func (c *countingExpirer) SweepExpired(context.Context) (int, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if n <= atomic.LoadInt32(&c.failures) {
		return 0, goerr.New("database is unavailable")
	}
	return int(n), nil
}

func runSweeper(t *testing.T, expirer *countingExpirer, minCalls int32) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		New(expirer, 10*time.Millisecond, logan.New()).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&expirer.calls) >= minCalls
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

func TestSweeperRunsPeriodically(t *testing.T) {
	defer goleak.VerifyNone(t)

	runSweeper(t, &countingExpirer{}, 3)
}

func TestSweeperSurvivesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	runSweeper(t, &countingExpirer{failures: 2}, 4)
}
