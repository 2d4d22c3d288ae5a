package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kingpin"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rarimo/duo-svc/internal/api"
	"github.com/rarimo/duo-svc/internal/config"
	"github.com/rarimo/duo-svc/internal/connectors"
	"github.com/rarimo/duo-svc/internal/core"
	"github.com/rarimo/duo-svc/internal/data"
	"github.com/rarimo/duo-svc/internal/metrics"
	"github.com/rarimo/duo-svc/internal/notify"
	"github.com/rarimo/duo-svc/internal/payload"
	"github.com/rarimo/duo-svc/internal/signature"
	"github.com/rarimo/duo-svc/internal/sweeper"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

func Run(args []string) bool {
	defer func() {
		if rvr := recover(); rvr != nil {
			logan.New().WithRecover(rvr).Error("app panicked")
		}
	}()

	cfg := config.New(kv.MustFromEnv())
	log := cfg.Log()

	app := kingpin.New("duo-svc", "two-party proposal quorum service")
	runCmd := app.Command("run", "run command")

	// Running api server together with the expiry sweeper
	serviceCmd := runCmd.Command("service", "run service")

	// Running only the expiry sweeper, e.g. next to several api replicas
	sweeperCmd := runCmd.Command("sweeper", "run expiry sweeper")

	// Running migrations
	migrateCmd := app.Command("migrate", "migrate command")
	migrateUpCmd := migrateCmd.Command("up", "migrate db up")
	migrateDownCmd := migrateCmd.Command("down", "migrate db down")

	// Printing the canonical payload and the hash participants sign
	hashCmd := app.Command("hash", "print canonical payload and its hash")
	hashKind := hashCmd.Arg("kind", "proposal kind").Required().Enum(
		string(data.ProposalKindCreateSession),
		string(data.ProposalKindOperate),
		string(data.ProposalKindCloseSession),
	)
	hashFile := hashCmd.Arg("payload", "path to the payload json").Required().ExistingFile()

	// Generating participant key-pair for local testing
	keygenCmd := app.Command("keygen", "generate participant key-pair")

	cmd, err := app.Parse(args[1:])
	if err != nil {
		log.WithError(err).Error("failed to parse arguments")
		return false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case serviceCmd.FullCommand():
		err = runService(ctx, cfg)
	case sweeperCmd.FullCommand():
		// the sweeper never submits, so no session service client is dialed
		svc := core.New(cfg.Storage(), signature.NewVerifier(log), nil, nil, cfg.Params(), log.WithField("component", "engine"))
		sweeper.New(svc, cfg.Proposals().SweepPeriod, log).Run(ctx)
	case migrateUpCmd.FullCommand():
		err = MigrateUp(cfg)
	case migrateDownCmd.FullCommand():
		err = MigrateDown(cfg)
	case hashCmd.FullCommand():
		err = printHash(data.ProposalKind(*hashKind), *hashFile)
	case keygenCmd.FullCommand():
		err = printKeypair()
	default:
		log.Errorf("unknown command %s", cmd)
		return false
	}

	if err != nil {
		log.WithError(err).Error("failed to exec cmd")
		return false
	}
	return true
}

func newService(cfg config.Config, notifier core.Notifier) *core.Service {
	log := cfg.Log()

	return core.New(
		cfg.Storage(),
		signature.NewVerifier(log.WithField("component", "verifier")),
		connectors.NewSessionConnector(cfg.SessionService(), log.WithField("component", "session-connector")),
		notifier,
		cfg.Params(),
		log.WithField("component", "engine"),
	)
}

func runService(ctx context.Context, cfg config.Config) error {
	log := cfg.Log()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}

	hub := notify.NewHub(log.WithField("component", "hub"))
	svc := newService(cfg, hub)

	server, err := api.NewServer(svc, hub, cfg.Listener(), cfg.RPC().WSOrigins, log.WithField("component", "api"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.New(svc, cfg.Proposals().SweepPeriod, log).Run(ctx)
	}()

	err = server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func printHash(kind data.ProposalKind, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read payload file", logan.F{"path": path})
	}

	action, err := payload.Parse(kind, raw)
	if err != nil {
		return errors.Wrap(err, "failed to parse payload", logan.F{"kind": kind})
	}

	fmt.Println("Payload: " + string(payload.Canonical(action)))
	fmt.Println("Hash: " + payload.Hash(action))
	return nil
}

func printKeypair() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "failed to generate key")
	}

	fmt.Println("Address: " + crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Println("Prv: " + hexutil.Encode(crypto.FromECDSA(key)))
	return nil
}
