package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manpreetbhatti/sketchroom/internal/db"
	"github.com/manpreetbhatti/sketchroom/internal/export"
	"github.com/manpreetbhatti/sketchroom/internal/model"
	"github.com/manpreetbhatti/sketchroom/internal/room"
	"github.com/manpreetbhatti/sketchroom/internal/ws"
)

const eventLimit = 50

// API serves read-only views of live rooms and, when a database is
// configured, their recorded history.
type API struct {
	store    *room.Store
	hub      *ws.Hub
	database *db.Database
}

// New builds the API. database may be nil when the ledger is disabled.
func New(store *room.Store, hub *ws.Hub, database *db.Database) *API {
	return &API{
		store:    store,
		hub:      hub,
		database: database,
	}
}

// Register mounts every endpoint on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.HealthHandler)
	mux.HandleFunc("/api/stats", a.StatsHandler)
	mux.HandleFunc("/api/rooms", a.RoomsRouter)
	mux.HandleFunc("/api/rooms/", a.RoomsRouter)
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	activeRooms, activeClients := a.hub.Stats()
	liveRooms, liveUsers := a.store.Stats()
	stats := map[string]interface{}{
		"active_rooms":   activeRooms,
		"active_clients": activeClients,
		"live_rooms":     liveRooms,
		"live_users":     liveUsers,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err != nil {
			slog.Warn("ledger stats", "error", err)
		} else {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_events"] = dbStats["event_count"]
			stats["total_joins"] = dbStats["join_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	ID      string        `json:"id"`
	Live    bool          `json:"live"`
	Users   []model.User  `json:"users"`
	Shapes  []model.Shape `json:"shapes"`
	History *db.Room      `json:"history,omitempty"`
	Events  []db.Event    `json:"events,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	response := map[string]interface{}{
		"rooms":  a.store.Rooms(),
		"limit":  limit,
		"offset": offset,
	}

	if a.database != nil {
		history, err := a.database.ListRooms(limit, offset)
		if err != nil {
			slog.Error("list room history", "error", err)
			errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
			return
		}
		if history == nil {
			history = []db.Room{}
		}
		response["history"] = history
	}

	jsonResponse(w, http.StatusOK, response)
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := RoomResponse{ID: roomID, Users: []model.User{}, Shapes: []model.Shape{}}
	if snap, ok := a.store.Snapshot(roomID); ok {
		resp.Live = true
		resp.Users = snap.Users
		resp.Shapes = snap.Shapes
	}

	if a.database != nil {
		history, err := a.database.GetRoom(roomID)
		if err != nil {
			slog.Error("get room history", "room", roomID, "error", err)
			errorResponse(w, http.StatusInternalServerError, "Failed to get room")
			return
		}
		resp.History = history

		if history != nil {
			events, err := a.database.ListEvents(roomID, eventLimit)
			if err != nil {
				slog.Error("list room events", "room", roomID, "error", err)
				errorResponse(w, http.StatusInternalServerError, "Failed to get room")
				return
			}
			resp.Events = events
		}
	}

	if !resp.Live && resp.History == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, resp)
}

// DeleteRoomHandler forgets a room's recorded history. A live room is not
// affected.
func (a *API) DeleteRoomHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodDelete {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if a.database == nil {
		errorResponse(w, http.StatusNotFound, "Room history is not recorded")
		return
	}

	if err := a.database.DeleteRoom(roomID); err != nil {
		slog.Error("delete room history", "room", roomID, "error", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to delete room")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "Room history deleted"})
}

// ExportHandler renders a live room's canvas as a PDF.
func (a *API) ExportHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap, ok := a.store.Snapshot(roomID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, "Room "+roomID, snap.Shapes); err != nil {
		slog.Error("export room", "room", roomID, "error", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to export room")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(roomID)+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")

	// /api/rooms or /api/rooms/
	if path == "" || path == "/" {
		a.ListRoomsHandler(w, r)
		return
	}

	path = strings.Trim(path, "/")

	// /api/rooms/{id}/export.pdf
	if roomID, ok := strings.CutSuffix(path, "/export.pdf"); ok && roomID != "" && !strings.Contains(roomID, "/") {
		a.ExportHandler(w, r, roomID)
		return
	}

	if strings.Contains(path, "/") {
		errorResponse(w, http.StatusNotFound, "Not found")
		return
	}

	// /api/rooms/{id}
	switch r.Method {
	case http.MethodGet:
		a.GetRoomHandler(w, r, path)
	case http.MethodDelete:
		a.DeleteRoomHandler(w, r, path)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
