// Package denorm recomputes the denormalized rating fields: per-user latest
// flags, per-add-on averages and counts, bayesian scores and grouped counts.
// Every operation recomputes from scratch, so reruns are harmless.
package denorm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aimd54/addon-ratings/internal/cache"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/internal/tasks"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

const groupedTTL = 24 * time.Hour

// GroupedKey is the cache key of an add-on's grouped ratings.
func GroupedKey(addonID uint) string {
	return "addons:grouped:rating:" + strconv.FormatUint(uint64(addonID), 10)
}

// Publisher sends reindex notifications.
type Publisher interface {
	Publish(name string, payload interface{}) error
}

// IndexDocument is the rating part of an add-on's search document.
type IndexDocument struct {
	AddonID          uint    `json:"addon_id"`
	AverageRating    float64 `json:"average_rating"`
	BayesianRating   float64 `json:"bayesian_rating"`
	TotalRatings     int     `json:"total_ratings"`
	TextRatingsCount int     `json:"text_ratings_count"`
}

// Service recomputes denormalized rating data.
type Service struct {
	ratingRepo *repository.RatingRepository
	addonRepo  *repository.AddonRepository
	cache      cache.Cache
	publisher  Publisher
	log        *logger.Logger
}

// NewService creates a new denormalization service. publisher may be nil.
func NewService(ratingRepo *repository.RatingRepository, addonRepo *repository.AddonRepository, c cache.Cache, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		ratingRepo: ratingRepo,
		addonRepo:  addonRepo,
		cache:      c,
		publisher:  publisher,
		log:        log,
	}
}

// Register binds every task of this service to the registry.
func (s *Service) Register(reg *tasks.Registry) {
	reg.Register(tasks.UpdateDenorm, func(ctx context.Context, t tasks.Task) error {
		for _, addonID := range t.AddonIDs {
			if err := s.UpdateDenorm(ctx, addonID, t.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	reg.Register(tasks.AddonRatingAggregates, func(ctx context.Context, t tasks.Task) error {
		return s.AddonRatingAggregates(ctx, t.AddonIDs...)
	})
	reg.Register(tasks.AddonBayesianRating, func(ctx context.Context, t tasks.Task) error {
		return s.AddonBayesianRating(ctx, t.AddonIDs...)
	})
	reg.Register(tasks.AddonGroupedRatings, func(ctx context.Context, t tasks.Task) error {
		for _, addonID := range t.AddonIDs {
			if _, err := s.RefreshGroupedRatings(ctx, addonID); err != nil {
				return err
			}
		}
		return nil
	})
	reg.Register(tasks.IndexAddon, func(ctx context.Context, t tasks.Task) error {
		return s.IndexAddon(ctx, t.AddonIDs...)
	})
}

// UpdateDenorm recomputes is_latest and previous_count over a user's live
// top-level ratings of an add-on, in creation order.
func (s *Service) UpdateDenorm(_ context.Context, addonID, userID uint) error {
	ratings, err := s.ratingRepo.ListForDenorm(addonID, userID)
	if err != nil {
		return fmt.Errorf("failed to load ratings for denormalization: %w", err)
	}
	for i := range ratings {
		ratings[i].PreviousCount = i
		ratings[i].IsLatest = i == len(ratings)-1
	}
	if err := s.ratingRepo.WriteDenorm(ratings); err != nil {
		return err
	}

	s.log.Debug().
		Uint("addon_id", addonID).
		Uint("user_id", userID).
		Int("ratings", len(ratings)).
		Msg("Rating denormalization updated")
	return nil
}

// AddonRatingAggregates recomputes average, total and text counts, the per-score
// aggregate row and the grouped ratings cache of each add-on, then the bayesian
// ratings from the fresh totals.
func (s *Service) AddonRatingAggregates(ctx context.Context, addonIDs ...uint) error {
	if err := s.writeAggregates(ctx, addonIDs...); err != nil {
		return err
	}
	return s.AddonBayesianRating(ctx, addonIDs...)
}

func (s *Service) writeAggregates(ctx context.Context, addonIDs ...uint) error {
	for _, addonID := range addonIDs {
		row, err := s.ratingRepo.Aggregates(addonID)
		if err != nil {
			return err
		}
		if err := s.addonRepo.UpdateRatingStats(addonID, row.Average, int(row.Total), int(row.TextCount)); err != nil {
			return err
		}

		counts, err := s.ratingRepo.GroupedCounts(addonID)
		if err != nil {
			return err
		}
		agg := &models.RatingAggregate{
			AddonID: addonID,
			Count1:  counts[1],
			Count2:  counts[2],
			Count3:  counts[3],
			Count4:  counts[4],
			Count5:  counts[5],
		}
		if err := s.addonRepo.UpsertAggregate(agg); err != nil {
			return err
		}
		s.storeGrouped(ctx, addonID, agg.Buckets())

		s.log.Debug().
			Uint("addon_id", addonID).
			Float64("average", row.Average).
			Int64("total", row.Total).
			Int64("text_count", row.TextCount).
			Msg("Addon rating aggregates updated")
	}
	return nil
}

// AddonBayesianRating blends each add-on's average with the sitewide mean.
// The add-on's own count and average are read from its ratings, not from the
// stored columns, so the result does not depend on the aggregates having run.
// Add-ons without ratings score exactly 0.
func (s *Service) AddonBayesianRating(_ context.Context, addonIDs ...uint) error {
	meanCount, meanRating, err := s.addonRepo.SitewideAverages()
	if err != nil {
		return err
	}
	for _, addonID := range addonIDs {
		row, err := s.ratingRepo.Aggregates(addonID)
		if err != nil {
			return err
		}
		value := Bayesian(meanCount, meanRating, int(row.Total), row.Average)
		if err := s.addonRepo.UpdateBayesianRating(addonID, value); err != nil {
			return err
		}
	}
	return nil
}

// Bayesian returns (mc*mm + total*avg) / (mc + total), or 0 without ratings.
func Bayesian(meanCount, meanRating float64, total int, average float64) float64 {
	if total <= 0 {
		return 0
	}
	n := float64(total)
	return (meanCount*meanRating + n*average) / (meanCount + n)
}

// GroupedRatings returns the score histogram of an add-on, reading through the cache.
func (s *Service) GroupedRatings(ctx context.Context, addonID uint) ([]models.ScoreCount, error) {
	raw, err := s.cache.Get(ctx, GroupedKey(addonID))
	if err != nil {
		s.log.ForAddon(addonID).Warn().Err(err).Msg("Grouped ratings cache unavailable")
	} else if raw != "" {
		var grouped []models.ScoreCount
		if err := json.Unmarshal([]byte(raw), &grouped); err == nil {
			return grouped, nil
		}
	}
	return s.RefreshGroupedRatings(ctx, addonID)
}

// RefreshGroupedRatings recounts the histogram and stores it in the cache.
func (s *Service) RefreshGroupedRatings(ctx context.Context, addonID uint) ([]models.ScoreCount, error) {
	counts, err := s.ratingRepo.GroupedCounts(addonID)
	if err != nil {
		return nil, err
	}
	grouped := make([]models.ScoreCount, 0, 5)
	for score := 1; score <= 5; score++ {
		grouped = append(grouped, models.ScoreCount{Score: score, Count: counts[score]})
	}
	s.storeGrouped(ctx, addonID, grouped)
	return grouped, nil
}

func (s *Service) storeGrouped(ctx context.Context, addonID uint, grouped []models.ScoreCount) {
	data, err := json.Marshal(grouped)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, GroupedKey(addonID), data, groupedTTL); err != nil {
		s.log.ForAddon(addonID).Warn().Err(err).Msg("Failed to cache grouped ratings")
	}
}

// IndexAddon emits a reindex notification carrying the current rating stats.
func (s *Service) IndexAddon(_ context.Context, addonIDs ...uint) error {
	for _, addonID := range addonIDs {
		addon, err := s.addonRepo.GetByID(addonID)
		if err != nil {
			return err
		}
		doc := IndexDocument{
			AddonID:          addon.ID,
			AverageRating:    addon.AverageRating,
			BayesianRating:   addon.BayesianRating,
			TotalRatings:     addon.TotalRatings,
			TextRatingsCount: addon.TextRatingsCount,
		}
		if s.publisher != nil {
			if err := s.publisher.Publish("index.addon", doc); err != nil {
				return fmt.Errorf("failed to publish reindex of addon %d: %w", addonID, err)
			}
		}
		s.log.Info().
			Uint("addon_id", addonID).
			Float64("average_rating", doc.AverageRating).
			Int("total_ratings", doc.TotalRatings).
			Msg("Addon queued for reindex")
	}
	return nil
}

// RecomputeAll refreshes aggregates (unless bayesianOnly) for every add-on and
// only then the bayesian ratings, so the sitewide prior sees the fresh totals.
// Work runs in batches. A failed batch is logged and counted;
// the sweep continues.
func (s *Service) RecomputeAll(ctx context.Context, batchSize int, bayesianOnly bool) (int, error) {
	ids, err := s.addonRepo.ListIDs()
	if err != nil {
		return 0, err
	}
	if batchSize < 1 {
		batchSize = 100
	}

	failed := 0
	sweep := func(name string, fn func(context.Context, ...uint) error) error {
		for start := 0; start < len(ids); start += batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+batchSize, len(ids))
			if err := fn(ctx, ids[start:end]...); err != nil {
				s.log.Error().Err(err).Str("step", name).Int("batch_start", start).Msg("Recompute batch failed")
				failed += end - start
			}
		}
		return nil
	}

	if !bayesianOnly {
		if err := sweep("aggregates", s.writeAggregates); err != nil {
			return failed, err
		}
	}
	if err := sweep("bayesian", s.AddonBayesianRating); err != nil {
		return failed, err
	}

	s.log.Info().
		Int("addons", len(ids)).
		Int("failed", failed).
		Bool("bayesian_only", bayesianOnly).
		Msg("Rating recompute sweep completed")
	return failed, nil
}
