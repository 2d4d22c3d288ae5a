package config

import (
	"github.com/rarimo/duo-svc/internal/data/pg"
	"gitlab.com/distributed_lab/kit/comfig"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/kit/pgdb"
)

type Config interface {
	comfig.Logger
	comfig.Listenerer
	pgdb.Databaser
	Paramser
	SessionServicer
	RPCer

	Storage() *pg.Storage
}

type config struct {
	comfig.Logger
	comfig.Listenerer
	pgdb.Databaser
	getter kv.Getter

	assets     comfig.Once
	allowlist  comfig.Once
	proposals  comfig.Once
	rooms      comfig.Once
	session    comfig.Once
	sessionCfg comfig.Once
	rpc        comfig.Once
	storage    comfig.Once
}

func New(getter kv.Getter) Config {
	return &config{
		getter:     getter,
		Logger:     comfig.NewLogger(getter, comfig.LoggerOpts{}),
		Listenerer: comfig.NewListenerer(getter),
		Databaser:  pgdb.NewDatabaser(getter),
	}
}

func (c *config) Storage() *pg.Storage {
	return c.storage.Do(func() interface{} {
		return pg.New(c.DB())
	}).(*pg.Storage)
}
