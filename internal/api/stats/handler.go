// Package stats serves read-only rating statistics and the health probe.
package stats

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// AddonReader loads add-ons with their denormalized rating fields.
type AddonReader interface {
	GetByID(id uint) (*models.Addon, error)
}

// GroupedReader returns the score histogram of an add-on.
type GroupedReader interface {
	GroupedRatings(ctx context.Context, addonID uint) ([]models.ScoreCount, error)
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// Handler handles statistics and health requests.
type Handler struct {
	addons  AddonReader
	grouped GroupedReader
	checks  map[string]Check
	log     *logger.Logger
}

// NewHandler creates a new stats handler. checks are run by the health probe.
func NewHandler(addons AddonReader, grouped GroupedReader, checks map[string]Check, log *logger.Logger) *Handler {
	return &Handler{
		addons:  addons,
		grouped: grouped,
		checks:  checks,
		log:     log,
	}
}

// Register mounts the summary route under api.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.GET("/addons/:id/ratings/summary", h.GetAddonSummary)
}

// Summary is the public rating block of an add-on.
type Summary struct {
	AddonID         uint           `json:"addon_id"`
	Average         float64        `json:"average"`
	BayesianAverage float64        `json:"bayesian_average"`
	Count           int            `json:"count"`
	TextCount       int            `json:"text_count"`
	GroupedCounts   map[string]int `json:"grouped_counts"`
}

// GetAddonSummary returns the rating statistics of a public add-on.
// GET /api/v1/addons/:id/ratings/summary.
func (h *Handler) GetAddonSummary(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.errorResponse(c, http.StatusNotFound, "Not found.")
		return
	}

	addon, err := h.addons.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.errorResponse(c, http.StatusNotFound, "Not found.")
			return
		}
		h.log.Error().Err(err).Uint64("addon_id", id).Msg("Failed to load addon")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load addon")
		return
	}
	if !addon.IsPublic() {
		h.errorResponse(c, http.StatusNotFound, "Not found.")
		return
	}

	grouped, err := h.grouped.GroupedRatings(c.Request.Context(), addon.ID)
	if err != nil {
		h.log.Error().Err(err).Uint("addon_id", addon.ID).Msg("Failed to load grouped ratings")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load grouped ratings")
		return
	}

	counts := make(map[string]int, len(grouped))
	for _, g := range grouped {
		counts[strconv.Itoa(g.Score)] = g.Count
	}
	c.JSON(http.StatusOK, Summary{
		AddonID:         addon.ID,
		Average:         addon.AverageRating,
		BayesianAverage: addon.BayesianRating,
		Count:           addon.TotalRatings,
		TextCount:       addon.TextRatingsCount,
		GroupedCounts:   counts,
	})
}

// Health runs every check and answers 503 if any fails.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			results[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    results,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
