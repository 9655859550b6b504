// Package server exposes the turn relay over HTTP: JSON and multipart turn
// endpoints, a websocket streaming endpoint, the voice catalogue, and the
// operational endpoints (health, readiness, metrics).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AnshuAditya03/Anshu-backend/internal/config"
	"github.com/AnshuAditya03/Anshu-backend/internal/health"
	"github.com/AnshuAditya03/Anshu-backend/internal/observe"
	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/internal/store"
	"github.com/AnshuAditya03/Anshu-backend/internal/voice"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 15 * time.Second

// Deps bundles everything the server needs. STT may be nil, in which case the
// audio and streaming endpoints report that transcription is unavailable.
type Deps struct {
	Relay    *relay.Relay
	Sessions *relay.SessionManager
	Voices   *voice.Table
	STT      stt.Provider
	Turns    store.TurnStore
	Metrics  *observe.Metrics
	Health   *health.Handler
}

// Server is the HTTP front of the relay. Construct with [New], run with
// [Server.Run].
type Server struct {
	cfg  config.ServerConfig
	deps Deps

	httpSrv *http.Server
}

// New assembles the server and its routes. A nil Turns store is replaced with
// the no-op implementation.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Turns == nil {
		deps.Turns = store.Noop{}
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}

	s := &Server{cfg: cfg, deps: deps}
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the full handler chain. The observe middleware wraps every
// route, including the operational ones.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turn", s.handleTurn)
	mux.HandleFunc("POST /v1/turn/audio", s.handleTurnAudio)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/voices", s.handleVoices)
	mux.HandleFunc("GET /v1/turns", s.handleTurns)

	s.deps.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.deps.Metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// [shutdownTimeout]. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", s.httpSrv.Addr, "tls", s.cfg.TLS != nil)
		var err error
		if s.cfg.TLS != nil {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler returns the full route chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
