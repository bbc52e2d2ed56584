package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/you/rtps/apps/api/internal/logging"
	"github.com/you/rtps/apps/api/internal/metrics"
	"github.com/you/rtps/apps/api/models"
	"github.com/you/rtps/apps/api/repository"
)

// FrequencyRepository defines the interface for frequency data operations
type FrequencyRepository interface {
	LoadZones(ctx context.Context) (map[int]models.ZoneFrequency, error)
	LoadBusLines(ctx context.Context) ([]models.BusLine, error)
	LoadRailLines(ctx context.Context) (map[string]models.RailLine, error)
	LoadTransitLines(ctx context.Context) (map[string]models.TransitLine, error)
}

// FrequencyHandler handles HTTP requests for frequency data
type FrequencyHandler struct {
	repo FrequencyRepository
}

// NewFrequencyHandler creates a new handler with the given repository
func NewFrequencyHandler(repo FrequencyRepository) *FrequencyHandler {
	return &FrequencyHandler{repo: repo}
}

// Mount registers the frequency endpoint on r. The unversioned path is the
// one the planning front-end was built against.
func (h *FrequencyHandler) Mount(r chi.Router) {
	r.Get("/api/rtps/v1/frequency", h.GetFrequency)
	r.Get("/api/rtps/frequency", h.GetFrequency)
}

// GetFrequency handles GET /api/rtps/v1/frequency?{zone|bus|rail|transit}
// Every outcome is a 200 JSON body; failures are reported in the body only.
func (h *FrequencyHandler) GetFrequency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category, ok := models.ParseCategory(r.URL.RawQuery)
	if !ok {
		metrics.ObserveFrequencyRequest("", "bad_category")
		writeJSON(w, models.StatusResponse{
			Status:  models.StatusFailed,
			Message: models.MessageBadCategory,
		})
		return
	}

	payload, err := h.load(ctx, category)
	if err != nil {
		writeLoadError(ctx, w, category, err)
		return
	}

	metrics.ObserveFrequencyRequest(string(category), "ok")

	// Planning outputs change only when the views are rebuilt
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Vary", "Accept-Encoding")
	writeJSON(w, payload)
}

func (h *FrequencyHandler) load(ctx context.Context, category models.Category) (any, error) {
	switch category {
	case models.CategoryZone:
		return h.repo.LoadZones(ctx)
	case models.CategoryBus:
		return h.repo.LoadBusLines(ctx)
	case models.CategoryRail:
		return h.repo.LoadRailLines(ctx)
	case models.CategoryTransit:
		return h.repo.LoadTransitLines(ctx)
	default:
		return nil, errors.New("unknown category " + string(category))
	}
}

// writeLoadError reports a loader failure with a generic body and logs the cause
func writeLoadError(ctx context.Context, w http.ResponseWriter, category models.Category, err error) {
	if errors.Is(err, repository.ErrNoResults) {
		metrics.ObserveFrequencyRequest(string(category), "empty")
		writeJSON(w, models.MessageResponse{Message: models.MessageNoResults})
		return
	}

	attrs := []slog.Attr{slog.String("category", string(category))}
	var qe *repository.QueryError
	if errors.As(err, &qe) {
		attrs = append(attrs, slog.String("kind", string(qe.Kind)), slog.String("table", qe.Table))
	}
	logging.LogError(logging.FromContext(ctx), "frequency query failed", err, attrs...)

	metrics.ObserveFrequencyRequest(string(category), "error")
	writeJSON(w, models.MessageResponse{Message: models.MessageInvalidQuery})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}
