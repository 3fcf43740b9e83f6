package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/cache"
	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
)

// StatsSource exposes cache statistics; the in-process cache implements
// it, the shared cache does not.
type StatsSource interface {
	Stats() cache.Stats
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	manager *knowledge.Manager
	stats   StatsSource
	logger  *zap.Logger
}

// NewHandler creates a new API handler. stats may be nil when the cache
// backend does not report statistics.
func NewHandler(manager *knowledge.Manager, stats StatsSource, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, stats: stats, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/agents", h.createAgent)
		r.Post("/agents/{name}/time", h.setAgentTime)
		r.Post("/agents/{name}/learn", h.learnTriplet)
		r.Post("/agents/{name}/absorb", h.absorbContent)
		r.Post("/agents/{name}/respond", h.updateWithResponse)
		r.Get("/agents/{name}/context", h.getContext)
		r.Get("/agents/{name}/knowledge", h.getKnowledge)
		r.Get("/cache/stats", h.cacheStats)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createAgentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := h.manager.CreateAgent(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

type setTimeRequest struct {
	Timestamp string `json:"timestamp,omitempty"`
	Day       *int   `json:"day,omitempty"`
	Hour      *int   `json:"hour,omitempty"`
}

func (h *Handler) setAgentTime(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req setTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var input any
	switch {
	case req.Timestamp != "":
		t, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timestamp must be RFC 3339"})
			return
		}
		input = t
	case req.Day != nil && req.Hour != nil:
		input = [2]int{*req.Day, *req.Hour}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timestamp or day/hour is required"})
		return
	}

	if err := h.manager.SetAgentTime(name, input); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) learnTriplet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var t knowledge.Triplet
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.manager.LearnTriplet(r.Context(), name, t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "learned"})
}

type absorbRequest struct {
	Content  string              `json:"content"`
	Author   string              `json:"author"`
	Triplets []knowledge.Triplet `json:"triplets,omitempty"`
	Topic    string              `json:"topic,omitempty"`
}

func (h *Handler) absorbContent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req absorbRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// With a topic the caller wants the refreshed context back in one
	// round trip.
	if req.Topic != "" {
		contextStr, err := h.manager.ProcessAndGetContext(r.Context(), name, req.Topic, req.Content, req.Author, req.Triplets)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "absorbed", "context": contextStr})
		return
	}

	if err := h.manager.AbsorbContent(r.Context(), name, req.Content, req.Author, req.Triplets); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "absorbed"})
}

type respondRequest struct {
	Response    string                      `json:"response"`
	Triplets    []knowledge.ResponseTriplet `json:"triplets,omitempty"`
	ContextUsed string                      `json:"context_used,omitempty"`
}

func (h *Handler) updateWithResponse(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.manager.UpdateWithResponse(r.Context(), name, req.Response, req.Triplets, req.ContextUsed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	topic := r.URL.Query().Get("topic")

	contextStr, err := h.manager.GetContext(r.Context(), name, topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent": name, "topic": topic, "context": contextStr})
}

func (h *Handler) getKnowledge(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	topic := r.URL.Query().Get("topic")

	view, err := h.manager.AgentKnowledge(r.Context(), name, topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// writeError maps the error taxonomy onto HTTP statuses: validation and
// extraction failures are the caller's fault, unknown agents are 404,
// everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ve *kgerr.ValidationError
	var ee *kgerr.ExtractionError
	var nf *kgerr.AgentNotFoundError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &ee):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
