package config

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rarimo/duo-svc/internal/core"
	"gitlab.com/distributed_lab/figure"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const dialTimeout = 10 * time.Second

type SessionServicer interface {
	SessionServiceConfig() *SessionServiceConfig
	SessionService() *rpc.Client
}

type SessionServiceConfig struct {
	Endpoint string `fig:"endpoint"`
	// Timeout bounds a single call to the session service.
	Timeout time.Duration `fig:"timeout"`
}

func (c *config) SessionServiceConfig() *SessionServiceConfig {
	return c.sessionCfg.Do(func() interface{} {
		cfg := &SessionServiceConfig{
			Timeout: core.DefaultSubmitTimeout,
		}

		if err := figure.Out(cfg).From(kv.MustGetStringMap(c.getter, "session_service")).Please(); err != nil {
			panic(errors.Wrap(err, "failed to figure out session_service"))
		}

		if cfg.Timeout <= 0 {
			panic(errors.New("session_service timeout must be positive"))
		}
		return cfg
	}).(*SessionServiceConfig)
}

// SessionService dials the JSON-RPC endpoint of the service that settles session states.
func (c *config) SessionService() *rpc.Client {
	return c.session.Do(func() interface{} {
		cfg := c.SessionServiceConfig()
		if cfg.Endpoint == "" {
			panic(errors.New("session_service endpoint is required"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()

		client, err := rpc.DialContext(ctx, cfg.Endpoint)
		if err != nil {
			panic(errors.Wrap(err, "failed to dial session service", logan.F{
				"endpoint": cfg.Endpoint,
			}))
		}

		return client
	}).(*rpc.Client)
}
