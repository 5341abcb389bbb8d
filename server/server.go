package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Config for the practice backend stub.
type Config struct {
	// HTTP listen address
	Addr string

	// SQLite transcript archive path; ":memory:" for ephemeral
	ArchivePath string
}

// Server is a development stand-in for the production practice backend:
// it speaks the session wire protocol over WebSocket, serves the REST
// transcription fallback, and archives transcripts to SQLite. Scene
// analysis and speech scoring are canned.
type Server struct {
	config   Config
	archive  *Archive
	upgrader websocket.Upgrader
	server   *http.Server
}

// New creates a stub server and opens its archive.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8444"
	}
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = ":memory:"
	}

	archive, err := OpenArchive(ctx, cfg.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	return &Server{
		config:  cfg,
		archive: archive,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dev stub, any origin may connect
			},
		},
	}, nil
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}

	go func() {
		slog.Info("Practice backend stub listening", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

// Stop releases the archive after the HTTP server is down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("stop HTTP server: %w", err)
		}
	}
	if err := s.archive.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Archive exposes the transcript store.
func (s *Server) Archive() *Archive { return s.archive }
