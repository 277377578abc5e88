// Package httpapi exposes the REST surface and the websocket entry point.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kanbanlab/boardsync/internal/app/apperr"
	"github.com/kanbanlab/boardsync/internal/app/metrics"
	"github.com/kanbanlab/boardsync/internal/app/realtime"
	"github.com/kanbanlab/boardsync/internal/app/services/boards"
	"github.com/kanbanlab/boardsync/internal/app/services/cards"
	"github.com/kanbanlab/boardsync/internal/app/services/lists"
	"github.com/kanbanlab/boardsync/internal/middleware"
	"github.com/kanbanlab/boardsync/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	boards     *boards.Service
	lists      *lists.Service
	cards      *cards.Service
	dispatcher *realtime.Dispatcher
	hub        *realtime.Hub
	publisher  realtime.Publisher

	audit    *auditLog
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// Config wires the handler's collaborators.
type Config struct {
	Boards     *boards.Service
	Lists      *lists.Service
	Cards      *cards.Service
	Dispatcher *realtime.Dispatcher
	Hub        *realtime.Hub

	// Publisher fans out snapshots after REST mutations; defaults to Hub.
	Publisher realtime.Publisher

	// AuditPath, when set, appends the audit trail to a JSONL file.
	AuditPath string

	Log *logger.Logger
}

// NewHandler returns a router exposing the REST API, the websocket endpoint
// and the operational endpoints.
func NewHandler(cfg Config) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = cfg.Hub
	}
	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		log.WithError(err).Warn("audit sink unavailable, keeping in-memory trail only")
	}

	h := &handler{
		boards:     cfg.Boards,
		lists:      cfg.Lists,
		cards:      cfg.Cards,
		dispatcher: cfg.Dispatcher,
		hub:        cfg.Hub,
		publisher:  pub,
		audit:      newAuditLog(0, sink),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/boards", h.createBoard).Methods(http.MethodPost)
	r.HandleFunc("/boards", h.listBoards).Methods(http.MethodGet)
	r.HandleFunc("/boards/{id}", h.getBoard).Methods(http.MethodGet)
	r.HandleFunc("/boards/{id}", h.deleteBoard).Methods(http.MethodDelete)
	r.HandleFunc("/boards/{id}/snapshot", h.boardSnapshot).Methods(http.MethodGet)

	r.HandleFunc("/lists", h.createList).Methods(http.MethodPost)
	r.HandleFunc("/cards", h.createCard).Methods(http.MethodPost)

	r.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)
	r.HandleFunc("/ws/boards/{id}", h.serveWS).Methods(http.MethodGet)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createBoard(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WorkspaceID string `json:"workspace_id"`
		Title       string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	b, err := h.boards.Create(r.Context(), payload.WorkspaceID, payload.Title, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	h.record(r, "create_board", b.ID, http.StatusCreated)
	writeJSON(w, http.StatusCreated, b)
}

func (h *handler) listBoards(w http.ResponseWriter, r *http.Request) {
	bs, err := h.boards.List(r.Context(), r.URL.Query().Get("workspace_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *handler) getBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.boards.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handler) deleteBoard(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["id"]
	userID := middleware.GetUserID(r.Context())
	if err := h.boards.Delete(r.Context(), boardID, userID); err != nil {
		writeAppError(w, err)
		return
	}
	h.record(r, "delete_board", boardID, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) boardSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.boards.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) createList(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BoardID  string `json:"board_id"`
		ListName string `json:"list_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	snap, err := h.lists.Create(r.Context(), payload.BoardID, payload.ListName, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	h.record(r, "create_list", payload.BoardID, http.StatusCreated)
	h.broadcast(r, payload.BoardID, realtime.EventListCreated, snap)
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handler) createCard(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ListID    string `json:"list_id"`
		BoardID   string `json:"board_id"`
		CardTitle string `json:"card_title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := h.cards.Create(r.Context(), payload.ListID, payload.BoardID, payload.CardTitle)
	if err != nil {
		writeAppError(w, err)
		return
	}
	h.record(r, "create_card", payload.BoardID, http.StatusCreated)
	h.broadcast(r, payload.BoardID, realtime.EventCardCreated, snap)
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// serveWS upgrades the connection and attaches the session to the board. The
// session blocks this goroutine until the client disconnects.
func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["id"]
	if _, err := h.boards.Get(r.Context(), boardID); err != nil {
		writeAppError(w, err)
		return
	}
	userID := middleware.GetUserID(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.record(r, "ws_connect", boardID, http.StatusSwitchingProtocols)
	// Run blocks this handler goroutine, keeping the request context alive
	// for the lifetime of the connection.
	sess := realtime.NewSession(conn, boardID, userID, h.hub, h.dispatcher, h.publisher, h.log)
	sess.Run(middleware.WithUserID(r.Context(), userID))
}

func (h *handler) broadcast(r *http.Request, boardID, event string, snap interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"action": event, "list": snap})
	if err != nil {
		return
	}
	if err := h.publisher.Publish(r.Context(), boardID, payload); err != nil {
		h.log.WithError(err).WithField("board_id", boardID).Warn("broadcast failed")
	}
}

func (h *handler) record(r *http.Request, action, boardID string, status int) {
	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       middleware.GetUserID(r.Context()),
		Action:     action,
		BoardID:    boardID,
		Path:       r.URL.Path,
		Method:     r.Method,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, apperr.HTTPStatus(err), err)
}
