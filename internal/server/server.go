package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"cargohold/internal/channel"
	"cargohold/internal/constants"
	"cargohold/internal/logger"
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	app        *App
	logger     *logger.Logger
}

// NewServer creates the HTTP server for an app.
func NewServer(app *App, addr string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		app:    app,
		logger: app.Logger,
	}
	s.registerRoutes(mux)

	handler := Chain(mux, RequestID, SecurityHeaders)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       0, // streaming uploads
		WriteTimeout:      0, // streaming downloads and the admin channel
		ReadHeaderTimeout: constants.HTTPReadHeaderTimeout,
		IdleTimeout:       constants.HTTPIdleTimeout,
	}

	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)

	// File transfer
	mux.HandleFunc("/api/transfers", s.handleTransfers)
	mux.HandleFunc("/api/transfers/", s.handleTransferByHash)

	// Subject management
	mux.HandleFunc("/api/subjects", s.handleSubjects)
	mux.HandleFunc("/api/subjects/", s.handleSubjectRoutes)

	// Security event log
	mux.HandleFunc("/api/audit", s.handleAuditQuery)
	mux.HandleFunc("/api/audit/stream", s.handleAuditStream)
	mux.HandleFunc("/api/audit/types", s.handleAuditEventTypes)

	// Privileged admin connection
	mux.HandleFunc("/api/channel", s.handleChannel)
}

// Start runs the server and blocks until a shutdown signal arrives.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, shutdownSignals...)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-stop:
		s.logger.Info("Received signal %v, shutting down...", sig)
	}

	// Close live admin sessions first so each one records its terminal
	// event and sends a normal close frame before the listener goes away.
	s.app.Registry.Drain(channel.ReasonShutdown)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(constants.ShutdownTimeoutSecs)*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Shutdown error: %v", err)
	}

	if s.app.Audit != nil {
		s.app.Audit.Stop()
	}
	if s.app.ServiceDB != nil {
		s.app.ServiceDB.Close()
	}

	s.logger.Info("Server stopped")
	return nil
}

// Handler returns the HTTP handler for testing purposes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
