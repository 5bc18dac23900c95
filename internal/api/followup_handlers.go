package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/followup-engine/internal/pkg/httputil"
	"github.com/ignite/followup-engine/internal/service/followup"
)

// Engine is the slice of the followup scheduler the HTTP layer drives.
type Engine interface {
	RunScheduling(ctx context.Context) (followup.BatchSummary, error)
	RunSlot(ctx context.Context, slot string) (followup.BatchSummary, error)
}

// StatsFunc reports runner counters for the status endpoint.
type StatsFunc func() (passes, slotPasses, sent, errs int64)

// FollowupHandlers exposes the manual trigger surface for scheduling passes.
// The same passes also run on the background clock; triggering one here is
// safe because passes are idempotent and serialized by the pass lock.
type FollowupHandlers struct {
	engine    Engine
	stats     StatsFunc
	startedAt time.Time
}

// NewFollowupHandlers creates the handler set. stats may be nil when no
// background runner is attached.
func NewFollowupHandlers(engine Engine, stats StatsFunc) *FollowupHandlers {
	return &FollowupHandlers{engine: engine, stats: stats, startedAt: time.Now()}
}

// RegisterRoutes registers the followup trigger routes.
func (h *FollowupHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/followups", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
		r.Post("/slot/{slot}", h.HandleRunSlot)
		r.Get("/status", h.HandleStatus)
	})
}

// HandleRun triggers a continuous-mode scheduling pass.
// POST /api/followups/run
func (h *FollowupHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	sum, err := h.engine.RunScheduling(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sum)
}

// HandleRunSlot triggers a fixed-slot pass that sends immediately.
// POST /api/followups/slot/{slot}
func (h *FollowupHandlers) HandleRunSlot(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")

	sum, err := h.engine.RunSlot(r.Context(), slot)
	if err != nil {
		if errors.Is(err, followup.ErrUnknownSlot) {
			httputil.BadRequest(w, "unknown slot: "+slot)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sum)
}

// HandleStatus reports runner counters and uptime.
// GET /api/followups/status
func (h *FollowupHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"slots":          followup.Slots,
	}
	if h.stats != nil {
		passes, slotPasses, sent, errs := h.stats()
		resp["scheduling_passes"] = passes
		resp["slot_passes"] = slotPasses
		resp["followups_sent"] = sent
		resp["errors"] = errs
	}
	httputil.JSON(w, http.StatusOK, resp)
}
