package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rjboer/sdragc/internal/logging"
)

// WebServer exposes gain history, the cumulative summary and live updates
// over HTTP.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// NewWebServer wires the hub's handlers onto a mux listening on addr.
func NewWebServer(addr string, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebServer{
		hub:    hub,
		logger: logger.With(logging.Subsystem("web")),
		srv:    &http.Server{Addr: addr, Handler: NewMux(hub)},
	}
}

// NewMux returns the API routes for hub.
func NewMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/summary", hub.handleSummary)
	mux.HandleFunc("/api/live", hub.handleLive)
	mux.HandleFunc("/api/ws", hub.handleWS)
	mux.HandleFunc("/api/config", hub.handleGetConfig)
	mux.HandleFunc("/api/config/update", hub.handleSetConfig)
	return mux
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (w *WebServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web telemetry shutdown", logging.F("error", err.Error()))
		}
	}()

	w.logger.Info("web telemetry listening", logging.F("addr", w.srv.Addr))
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
