// Package httpapi exposes the sync coordinator over a small JSON API. The
// adapter stays thin: it extracts the caller's lab scope from the bearer
// token, decodes DTOs, and maps the error taxonomy to status codes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/syncsvc"
)

type HTTPServer struct {
	address   string
	coord     *syncsvc.Coordinator
	logger    logging.Logger
	jwtSecret []byte
}

func NewHTTPServer(a string, l logging.Logger, coord *syncsvc.Coordinator, secretKey string) *HTTPServer {
	return &HTTPServer{
		address:   a,
		logger:    l.With("module", "http_server"),
		coord:     coord,
		jwtSecret: []byte(secretKey),
	}
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
