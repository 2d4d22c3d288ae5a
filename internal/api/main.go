package api

import (
	"context"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rarimo/duo-svc/internal/notify"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const (
	websocketPath = "/ws"
	metricsPath   = "/metrics"
)

// Server serves the quorum namespace over HTTP and websockets. Subscriptions
// are only available over websockets.
type Server struct {
	rpc      *rpc.Server
	listener net.Listener
	origins  []string
	log      *logan.Entry
}

func NewServer(engine Engine, hub *notify.Hub, listener net.Listener, origins []string, log *logan.Entry) (*Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(Namespace, NewQuorumAPI(engine, hub, log)); err != nil {
		return nil, errors.Wrap(err, "failed to register quorum api")
	}

	return &Server{
		rpc:      server,
		listener: listener,
		origins:  origins,
		log:      log,
	}, nil
}

func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.Handle(metricsPath, promhttp.Handler())
	router.Handle(websocketPath, s.rpc.WebsocketHandler(s.origins))
	router.Handle("/", s.rpc)
	return router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			s.log.WithError(err).Error("failed to shutdown http server")
		}
		s.rpc.Stop()
	}()

	s.log.WithField("addr", s.listener.Addr().String()).Info("serving quorum api")
	if err := server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "failed to serve quorum api")
	}
	return nil
}
