// Package host serves the boundary between the ad runtime and the signage
// host: identity properties, cycle control, the display trigger and the
// readiness status.
package host

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	"github.com/wrale/wrale-adplay/internal/wadplayd/journal"
	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
)

const defaultListLimit = 20

// Cycles is the cycle control the host drives. *lifecycle.Orchestrator implements it.
type Cycles interface {
	Start(ctx context.Context) (uuid.UUID, error)
	Trigger()
	Status() lifecycle.Status
	Current() *lifecycle.LifecycleContext
}

// Options configures a Handler
type Options struct {
	// QueryParam names the launch parameter carrying the screen identity override
	QueryParam string
	// AllowedOrigins lists the browser origins allowed to call the API; "*" allows all
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// Handler serves the host API
type Handler struct {
	cycles     Cycles
	journal    journal.Journal
	props      *Properties
	hub        *Hub
	opts       Options
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
	baseCtx    context.Context
	queryParam string
}

// NewHandler creates a host handler. Cycles started through the API run
// under baseCtx rather than the request context.
func NewHandler(baseCtx context.Context, cycles Cycles, j journal.Journal, props *Properties, hub *Hub, opts Options, logger zerolog.Logger) *Handler {
	if opts.QueryParam == "" {
		opts.QueryParam = "screen_id"
	}
	h := &Handler{
		cycles:     cycles,
		journal:    j,
		props:      props,
		hub:        hub,
		opts:       opts,
		logger:     logger.With().Str("component", "host-http").Logger(),
		baseCtx:    baseCtx,
		queryParam: opts.QueryParam,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// Router returns the complete host API
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestIDHeaderMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics.Handler())
	}

	r.Route("/api/v1alpha1", func(r chi.Router) {
		r.Put("/identity", h.handlePutIdentity)
		r.Get("/identity", h.handleGetIdentity)
		r.Post("/cycles", h.handleStartCycle)
		r.Get("/cycles", h.handleListCycles)
		r.Post("/trigger", h.handleTrigger)
		r.Get("/status", h.handleStatus)
		r.Get("/status/ws", h.handleStatusWS)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			h.respondJSON(w, http.StatusNotFound, v1alpha1.ErrorResponse{Error: "not found"})
		})
	})

	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return h.matchOrigin(origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"},
	})
	return c.Handler(r)
}

func (h *Handler) handlePutIdentity(w http.ResponseWriter, r *http.Request) {
	var props v1alpha1.IdentityProperties
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		h.respondError(w, errInvalidRequest("invalid request body"))
		return
	}
	if props.Resolution != nil && !govalidator.Matches(*props.Resolution, `^[0-9]+x[0-9]+$`) {
		h.respondError(w, errInvalidRequest("resolution must look like 1920x1080"))
		return
	}

	h.props.Set(props)
	h.logger.Info().
		Bool("slotId", props.SlotID != nil).
		Bool("groupId", props.GroupID != nil).
		Bool("hardwareId", props.HardwareID != nil).
		Msg("host identity properties updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.props.Get())
}

func (h *Handler) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get(h.queryParam); v != "" {
		h.props.SetQueryParam(v)
	}

	id, err := h.cycles.Start(h.baseCtx)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1alpha1/status")
	h.respondJSON(w, http.StatusAccepted, v1alpha1.CycleStarted{
		TypeMeta: v1alpha1.TypeMeta{Kind: "CycleStarted", APIVersion: v1alpha1.APIVersion},
		CycleID:  id,
	})
}

func (h *Handler) handleListCycles(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.respondError(w, errInvalidRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list cycles")
		h.respondError(w, err)
		return
	}

	list := v1alpha1.CycleRecordList{
		TypeMeta: v1alpha1.TypeMeta{Kind: "CycleRecordList", APIVersion: v1alpha1.APIVersion},
		Items:    make([]v1alpha1.CycleRecord, 0, len(entries)),
	}
	for _, e := range entries {
		list.Items = append(list.Items, toRecord(e))
	}
	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	h.cycles.Trigger()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if lc := h.cycles.Current(); lc != nil {
		w.Header().Set("X-Cycle-Id", lc.ID.String())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.cycles.Status().String()))
}

func (h *Handler) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	var cycleID uuid.UUID
	if lc := h.cycles.Current(); lc != nil {
		cycleID = lc.ID
	}
	initial, err := h.hub.message(cycleID, h.cycles.Status())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hub.serve(w, r, &h.upgrader, initial)
}

func (h *Handler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.matchOrigin(origin)
}

func (h *Handler) matchOrigin(origin string) bool {
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func toRecord(e journal.Entry) v1alpha1.CycleRecord {
	return v1alpha1.CycleRecord{
		CycleID:        e.CycleID,
		ScreenID:       e.ScreenID,
		IdentitySource: e.IdentitySource,
		OfferID:        e.OfferID,
		DealID:         e.DealID,
		Status:         e.Status,
		Result:         e.Result,
		CompletionRate: e.CompletionRate,
		Confirmed:      e.Confirmed,
		StartedAt:      e.StartedAt.UTC().Truncate(time.Millisecond),
		FinishedAt:     e.FinishedAt.UTC().Truncate(time.Millisecond),
		Error:          e.Error,
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	h.respondJSON(w, code, v1alpha1.ErrorResponse{Error: msg})
}
