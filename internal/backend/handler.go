package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/pai-lessons/internal/responses"
	"github.com/p-n-ai/pai-lessons/internal/snapshot"
)

const maxBodyBytes = 1 << 20

// Handler serves the response endpoints.
type Handler struct {
	repo        Repository
	sessions    SessionStore
	schemas     *Schemas
	events      EventLogger
	snapshots   snapshot.Store
	issueTokens bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithEvents records a response_saved event for every save.
func WithEvents(events EventLogger) HandlerOption {
	return func(h *Handler) {
		h.events = events
	}
}

// WithSnapshots serves /snapshot so a learner can resume on another device.
func WithSnapshots(store snapshot.Store) HandlerOption {
	return func(h *Handler) {
		h.snapshots = store
	}
}

// WithSessionIssuing serves POST /sessions, which signs in any user_id
// without credentials. Development only.
func WithSessionIssuing() HandlerOption {
	return func(h *Handler) {
		h.issueTokens = true
	}
}

// NewHandler wires the response endpoints.
func NewHandler(repo Repository, sessions SessionStore, schemas *Schemas, opts ...HandlerOption) *Handler {
	h := &Handler{
		repo:     repo,
		sessions: sessions,
		schemas:  schemas,
		events:   NopEventLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the handler's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /responses/{kind}", h.handleSaveResponse)
	mux.HandleFunc("GET /responses/{kind}", h.handleListResponses)
	mux.HandleFunc("DELETE /sessions", h.handleEndSession)
	if h.issueTokens {
		mux.HandleFunc("POST /sessions", h.handleCreateSession)
	}
	mux.HandleFunc("GET /lessons/{lesson_id}/export", h.handleExport)
	if h.snapshots != nil {
		mux.HandleFunc("PUT /snapshot", h.handlePutSnapshot)
		mux.HandleFunc("GET /snapshot", h.handleGetSnapshot)
		mux.HandleFunc("DELETE /snapshot", h.handleDeleteSnapshot)
	}
}

type saveRequest struct {
	LessonID string `json:"lesson_id"`
}

func (h *Handler) handleSaveResponse(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	if err := h.schemas.Validate(kind, body); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verrs.Error(), "details": verrs})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req saveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	record, err := responses.DecodeRecord(kind, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.repo.Upsert(r.Context(), userID, req.LessonID, kind, normalize(record))
	if err != nil {
		slog.Error("storing response failed", "kind", kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not store response")
		return
	}

	if err := h.events.LogEvent(r.Context(), Event{
		UserID:    userID,
		LessonID:  req.LessonID,
		EventType: EventResponseSaved,
		Data: map[string]any{
			"kind":                string(kind),
			"associated_activity": stored.AssociatedActivity,
			"time_spent":          stored.TimeSpent,
			"partial_response":    stored.PartialResponse,
		},
	}); err != nil {
		slog.Warn("event log failed", "type", EventResponseSaved, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": stored})
}

func (h *Handler) handleListResponses(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	lessonID := r.URL.Query().Get("lesson_id")
	if lessonID == "" {
		writeError(w, http.StatusBadRequest, "lesson_id is required")
		return
	}

	list, err := h.repo.List(r.Context(), userID, lessonID, kind)
	if err != nil {
		slog.Error("listing responses failed", "kind", kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not list responses")
		return
	}
	if list == nil {
		list = []responses.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := h.sessions.Create(r.Context(), req.UserID)
	if err != nil {
		slog.Error("creating session failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	slog.Warn("issued development session", "user_id", req.UserID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]string{"token": token, "user_id": req.UserID},
	})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := h.sessions.Delete(r.Context(), token); err != nil {
		slog.Error("ending session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	lessonID := r.PathValue("lesson_id")
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	data, err := ExportLesson(ctx, h.repo, userID, lessonID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "no responses for lesson")
		return
	}
	if err != nil {
		slog.Error("export failed", "lesson_id", lessonID, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not export lesson")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": lessonID + "-responses.xlsx"})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) handlePutSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "snapshot must be a JSON document")
		return
	}
	if err := h.snapshots.Save(r.Context(), userID, body); err != nil {
		slog.Error("saving snapshot failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save snapshot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	data, found, err := h.snapshots.Load(r.Context(), userID)
	if err != nil {
		slog.Error("loading snapshot failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load snapshot")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"data": data})
}

func (h *Handler) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if err := h.snapshots.Delete(r.Context(), userID); err != nil {
		slog.Error("deleting snapshot failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete snapshot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	userID, err := h.sessions.Lookup(r.Context(), token)
	if errors.Is(err, ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, "unknown session")
		return "", false
	}
	if err != nil {
		slog.Error("session lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not verify session")
		return "", false
	}
	return userID, true
}

func pathKind(w http.ResponseWriter, r *http.Request) (responses.Kind, bool) {
	kind, err := responses.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
