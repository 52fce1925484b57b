package httpapi

import (
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/kita83/nok/contract"
	"github.com/kita83/nok/errors"
)

// Handler serves the CRUD endpoints. These are collaborator-facing
// conveniences around the store; the realtime core never depends on
// them.
type Handler struct {
	log      *slog.Logger
	store    contract.Store
	validate *validator.Validate
}

func NewHandler(log *slog.Logger, store contract.Store) *Handler {
	return &Handler{
		log:      log,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type CreateUserRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPublic    *bool  `json:"is_public"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.store.CreateUser(r.Context(), req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, user)
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	room, err := h.store.CreateRoom(r.Context(), req.Name, req.Description, isPublic)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, room)
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, rooms)
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.store.GetRoom(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, room)
}

func (h *Handler) ListRoomMembers(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, err := h.store.GetRoom(r.Context(), roomID); err != nil {
		h.fail(w, err)
		return
	}
	members, err := h.store.ListRoomMembers(r.Context(), roomID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if members == nil {
		members = []string{}
	}
	h.respond(w, http.StatusOK, members)
}

// ListMessages serves room history in chronological order, newest
// window last, so a client catching up after a push sees the event it
// was just notified about.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetRoom(r.Context(), roomID); err != nil {
		h.fail(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(r.Context(), roomID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, messages)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Response encoding failed", "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case goerrors.Is(err, errors.ErrUserNotFound), goerrors.Is(err, errors.ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.log.Error("Request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
