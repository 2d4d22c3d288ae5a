package config

import (
	"gitlab.com/distributed_lab/figure"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type RPCer interface {
	RPC() *RPCConfig
}

type RPCConfig struct {
	// WSOrigins are the allowed websocket origins, "*" allows any.
	WSOrigins []string `fig:"ws_origins"`
}

func (c *config) RPC() *RPCConfig {
	return c.rpc.Do(func() interface{} {
		cfg := &RPCConfig{}
		if err := figure.Out(cfg).From(kv.MustGetStringMap(c.getter, "rpc")).Please(); err != nil {
			panic(errors.Wrap(err, "failed to figure out rpc"))
		}
		return cfg
	}).(*RPCConfig)
}
