// Package httpapi exposes the server's HTTP surface: the websocket
// endpoint driving the realtime core, and the CRUD endpoints for
// users, rooms, and message history.
package httpapi

import (
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kita83/nok/contract"
	"github.com/kita83/nok/errors"
)

// WSHandler upgrades /ws/{userId} and pumps inbound frames into the
// dispatcher. The user identity comes from the path; anything beyond
// that (authentication) is out of scope here.
type WSHandler struct {
	log        *slog.Logger
	store      contract.Store
	dispatcher contract.IDispatcher
	upgrader   websocket.Upgrader
}

func NewWSHandler(log *slog.Logger, store contract.Store, dispatcher contract.IDispatcher) *WSHandler {
	return &WSHandler{
		log:        log,
		store:      store,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	// Unknown users are refused before the upgrade; after it there is
	// no error frame to send back.
	if _, err := h.store.GetUser(r.Context(), userID); err != nil {
		if goerrors.Is(err, errors.ErrUserNotFound) {
			http.Error(w, "unknown user", http.StatusNotFound)
			return
		}
		h.log.Error("User lookup failed before upgrade", "user_id", userID, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Upgrade failed", "user_id", userID, "error", err)
		return
	}

	// The request context dies with the socket; cleanup still has to
	// persist the offline transition, so dispatcher calls get their
	// own context.
	ctx := context.Background()

	h.dispatcher.Connect(ctx, userID, conn)
	defer h.dispatcher.Disconnect(ctx, userID, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("Read loop ended", "user_id", userID, "error", err)
			return
		}
		h.dispatcher.HandleFrame(ctx, userID, raw)
	}
}
