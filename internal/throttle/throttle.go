package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aimd54/addon-ratings/internal/cache"
	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Scopes.
const (
	ScopePost   = "post"
	ScopeEdit   = "edit"
	ScopeDelete = "delete"
	ScopeReply  = "reply"
	ScopeFlag   = "flag"
	ScopeVote   = "vote"
)

// Limits holds the parsed rates of one scope.
type Limits struct {
	User []Rate
	IP   []Rate
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Throttler checks and records hits.
type Throttler struct {
	cache  cache.Cache
	scopes map[string]Limits
	log    *logger.Logger
	now    func() time.Time
}

// New builds a throttler from config rates.
func New(c cache.Cache, cfg map[string]config.ScopeRates, log *logger.Logger) (*Throttler, error) {
	scopes := make(map[string]Limits, len(cfg))
	for name, rates := range cfg {
		user, err := ParseRates(rates.User)
		if err != nil {
			return nil, fmt.Errorf("throttle scope %s: %w", name, err)
		}
		ip, err := ParseRates(rates.IP)
		if err != nil {
			return nil, fmt.Errorf("throttle scope %s: %w", name, err)
		}
		scopes[name] = Limits{User: user, IP: ip}
	}
	return &Throttler{cache: c, scopes: scopes, log: log, now: time.Now}, nil
}

// WithClock replaces the time source.
func (t *Throttler) WithClock(now func() time.Time) *Throttler {
	t.now = now
	return t
}

type layer struct {
	key     string
	rate    Rate
	resetAt time.Time
}

func (t *Throttler) layers(scope string, user *models.User, ip string) []layer {
	limits := t.scopes[scope]
	now := t.now()
	var out []layer
	build := func(kind, ident string, rates []Rate) {
		for _, r := range rates {
			index := now.UnixNano() / int64(r.Window)
			out = append(out, layer{
				key:     fmt.Sprintf("throttle:%s:%s:%s:%d:%d", scope, kind, ident, int64(r.Window/time.Second), index),
				rate:    r,
				resetAt: time.Unix(0, (index+1)*int64(r.Window)),
			})
		}
	}
	if user != nil {
		build("user", strconv.FormatUint(uint64(user.ID), 10), limits.User)
	}
	if ip != "" {
		build("ip", ip, limits.IP)
	}
	return out
}

// Allow checks every layer of the scope and records the hit in one atomic
// step. A denied attempt is not recorded; an allowed one counts against
// every layer.
func (t *Throttler) Allow(ctx context.Context, scope string, user *models.User, ip string) (Decision, error) {
	if user.HasPermission(models.PermissionAPIBypassThrottling) {
		return Decision{Allowed: true}, nil
	}
	layers := t.layers(scope, user, ip)
	if len(layers) == 0 {
		return Decision{Allowed: true}, nil
	}

	now := t.now()
	slots := make([]cache.Slot, len(layers))
	for i, l := range layers {
		slots[i] = cache.Slot{Key: l.key, Limit: l.rate.Limit, TTL: l.resetAt.Sub(now) + time.Second}
	}
	counts, taken, err := t.cache.TakeSlots(ctx, slots)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check throttle counters: %w", err)
	}
	if taken {
		return Decision{Allowed: true}, nil
	}

	var retry time.Duration
	for i, l := range layers {
		if counts[i] >= l.rate.Limit {
			if wait := l.resetAt.Sub(now); wait > retry {
				retry = wait
			}
		}
	}
	metrics.RecordThrottled(scope)
	t.log.Info().Str("scope", scope).Str("ip", ip).Dur("retry_after", retry).Msg("Request throttled")
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

