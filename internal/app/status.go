package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/specialistvlad/conveyorgo/internal/report"
)

// statusServer exposes the run over HTTP while it executes: a liveness
// endpoint and a JSON snapshot of every job's current state.
type statusServer struct {
	app        *App
	httpServer *http.Server
}

// startStatusServer starts the status HTTP server in the background.
func (a *App) startStatusServer(port int, snapshot func() *report.Run) *statusServer {
	r := chi.NewRouter()
	r.Get("/health", a.healthHandler)
	r.Get("/api/run", func(w http.ResponseWriter, req *http.Request) {
		a.logger.Debug("Run snapshot endpoint hit.", "remote_addr", req.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			a.logger.Error("Failed to encode run snapshot.", "error", err)
		}
	})

	srv := &statusServer{
		app: a,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		},
	}

	go func() {
		a.logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost:%d", port))
		// ListenAndServe returns ErrServerClosed on graceful shutdown; only
		// other errors are real failures.
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()

	return srv
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// stop shuts the status server down gracefully.
func (s *statusServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.app.logger.Debug("🩺 Shutting down status server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.app.logger.Error("Status server shutdown failed", "error", err)
		return
	}
	s.app.logger.Debug("Status server shut down gracefully.")
}
