package httpapi

import (
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// NewRouter wires every endpoint of the HTTP surface.
func NewRouter(h *Handler, ws *WSHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/api/users", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/api/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{userId}", h.GetUser).Methods(http.MethodGet)

	r.HandleFunc("/api/rooms", h.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms", h.ListRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{roomId}", h.GetRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{roomId}/members", h.ListRoomMembers).Methods(http.MethodGet)

	r.HandleFunc("/api/messages", h.ListMessages).Methods(http.MethodGet)

	r.HandleFunc("/ws/{userId}", ws.Handle)
	return r
}

// Server is the HTTP listener as a supervised worker.
type Server struct {
	log *slog.Logger
	srv *http.Server
}

func NewServer(log *slog.Logger, addr string, router *mux.Router) *Server {
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// No WriteTimeout: websocket connections outlive any
			// sensible value and would be severed mid-session.
		},
	}
}

// Run serves until the context is cancelled, then drains with a
// bounded graceful shutdown. A listener failure is returned so the
// supervisor can restart the worker.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Forced shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if goerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
