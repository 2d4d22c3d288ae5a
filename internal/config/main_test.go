package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapGetter map[string]map[string]interface{}

func (g mapGetter) GetStringMap(key string) (map[string]interface{}, error) {
	return g[key], nil
}

func validGetter() mapGetter {
	return mapGetter{
		"proposals": {
			"ttl":             "2h",
			"sweep_period":    "30s",
			"required_quorum": 100,
		},
		"rooms": {
			"ttl": "720h",
		},
		"assets": {
			"USDC": 6,
			"eth":  "18",
		},
		"allowlist": {
			"chains": []string{"polygon"},
		},
		"session_service": {
			"endpoint": "http://localhost:8545",
			"timeout":  "45s",
		},
	}
}

func TestParams(t *testing.T) {
	cfg := New(validGetter())

	params := cfg.Params()
	assert.Equal(t, 2*time.Hour, params.ProposalTTL)
	assert.Equal(t, 720*time.Hour, params.RoomTTL)
	assert.Equal(t, int64(100), params.RequiredQuorum)
	assert.Equal(t, 45*time.Second, params.SubmitTimeout)
	assert.Equal(t, map[string]uint8{"USDC": 6, "eth": 18}, params.Assets)
	assert.Equal(t, map[string]struct{}{"polygon": {}}, params.Chains)
	assert.Equal(t, 30*time.Second, cfg.Proposals().SweepPeriod)
}

func TestSessionServiceTimeoutDefault(t *testing.T) {
	getter := validGetter()
	delete(getter["session_service"], "timeout")

	assert.Equal(t, 30*time.Second, New(getter).Params().SubmitTimeout)
}

func TestRequiredQuorumMustBeFixed(t *testing.T) {
	for _, quorum := range []int{50, 150} {
		getter := validGetter()
		getter["proposals"]["required_quorum"] = quorum

		cfg := New(getter)
		require.Panics(t, func() { cfg.Proposals() }, "quorum %d", quorum)
	}
}
