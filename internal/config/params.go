package config

import (
	"time"

	"github.com/rarimo/duo-svc/internal/core"
	"github.com/rarimo/duo-svc/internal/payload"
	"github.com/spf13/cast"
	"gitlab.com/distributed_lab/figure"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const defaultSweepPeriod = time.Minute

type Paramser interface {
	Params() core.Params
	Proposals() *ProposalsConfig
}

type ProposalsConfig struct {
	TTL            time.Duration `fig:"ttl"`
	SweepPeriod    time.Duration `fig:"sweep_period"`
	RequiredQuorum int64         `fig:"required_quorum"`
}

type RoomsConfig struct {
	// TTL of zero keeps rooms open until their session is closed.
	TTL time.Duration `fig:"ttl"`
}

// Params collects the engine rules spread over several config sections.
func (c *config) Params() core.Params {
	proposals := c.Proposals()

	return core.Params{
		ProposalTTL:    proposals.TTL,
		RoomTTL:        c.rooms.Do(c.readRooms).(*RoomsConfig).TTL,
		RequiredQuorum: proposals.RequiredQuorum,
		Assets:         c.assets.Do(c.readAssets).(map[string]uint8),
		Chains:         c.allowlist.Do(c.readAllowlist).(map[string]struct{}),
		SubmitTimeout:  c.SessionServiceConfig().Timeout,
	}
}

func (c *config) Proposals() *ProposalsConfig {
	return c.proposals.Do(func() interface{} {
		cfg := &ProposalsConfig{
			TTL:         core.DefaultProposalTTL,
			SweepPeriod: defaultSweepPeriod,
		}

		if err := figure.Out(cfg).From(kv.MustGetStringMap(c.getter, "proposals")).Please(); err != nil {
			panic(errors.Wrap(err, "failed to figure out proposals"))
		}

		if cfg.RequiredQuorum != 0 && cfg.RequiredQuorum != payload.RequiredQuorum {
			panic(errors.New("proposals required_quorum must be 100 with fixed 50/50 weights"))
		}

		if cfg.SweepPeriod <= 0 {
			panic(errors.New("proposals sweep_period must be positive"))
		}
		return cfg
	}).(*ProposalsConfig)
}

func (c *config) readRooms() interface{} {
	cfg := &RoomsConfig{}

	if err := figure.Out(cfg).From(kv.MustGetStringMap(c.getter, "rooms")).Please(); err != nil {
		panic(errors.Wrap(err, "failed to figure out rooms"))
	}
	return cfg
}

func (c *config) readAllowlist() interface{} {
	var cfg struct {
		Chains []string `fig:"chains,required"`
	}

	if err := figure.Out(&cfg).From(kv.MustGetStringMap(c.getter, "allowlist")).Please(); err != nil {
		panic(errors.Wrap(err, "failed to figure out allowlist"))
	}

	chains := make(map[string]struct{}, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		chains[chain] = struct{}{}
	}
	return chains
}

// readAssets expects a flat map of asset symbol to decimals, e.g. usdc: 6.
func (c *config) readAssets() interface{} {
	raw := kv.MustGetStringMap(c.getter, "assets")

	assets := make(map[string]uint8, len(raw))
	for symbol, value := range raw {
		decimals, err := cast.ToUint8E(value)
		if err != nil {
			panic(errors.Wrap(err, "failed to parse asset decimals", logan.F{
				"asset": symbol,
			}))
		}
		assets[symbol] = decimals
	}

	if len(assets) == 0 {
		panic(errors.New("at least one asset must be configured"))
	}
	return assets
}
