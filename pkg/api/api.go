// Package api serves recorded run history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address once started.
	Addr() string
}

var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	store      store.Store
	files      *reportFileServer
	users      map[string][]byte
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	doneOnce   sync.Once
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.APIConfig) Server {
	return newServer(log, cfg, nil)
}

func newServer(log logrus.FieldLogger, cfg *config.APIConfig, st store.Store) *server {
	log = log.WithField("component", "api")

	users := make(map[string][]byte, len(cfg.Auth.Basic.Users))
	for _, u := range cfg.Auth.Basic.Users {
		users[u.Username] = []byte(u.PasswordHash)
	}

	var files *reportFileServer
	if cfg.Server.ReportDir != "" {
		files = newReportFileServer(log, cfg.Server.ReportDir)
	}

	return &server{
		log:   log,
		cfg:   cfg,
		store: st,
		files: files,
		users: users,
		done:  make(chan struct{}),
	}
}

// Start opens the history store and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	if s.store == nil {
		s.store = store.NewStore(s.log, &s.cfg.Database)
	}

	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind synchronously so port conflicts fail Start.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		s.closeDone()
		s.wg.Wait()
		_ = s.store.Stop()

		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.listener = ln

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	s.closeDone()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

func (s *server) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}
