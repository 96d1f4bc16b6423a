// Package throttle enforces per-scope rate limits on rating writes, counted
// separately per user and per client IP in fixed Redis windows.
package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate allows Limit hits per Window.
type Rate struct {
	Limit  int64
	Window time.Duration
	raw    string
}

func (r Rate) String() string {
	return r.raw
}

var periods = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute,
	"h": time.Hour, "hour": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour,
}

// ParseRate parses "N/[k]period", e.g. "1/minute", "24/day" or "1/5second".
func ParseRate(s string) (Rate, error) {
	num, per, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: missing '/'", s)
	}
	limit, err := strconv.ParseInt(num, 10, 64)
	if err != nil || limit < 1 {
		return Rate{}, fmt.Errorf("invalid rate %q: bad count", s)
	}

	i := 0
	for i < len(per) && per[i] >= '0' && per[i] <= '9' {
		i++
	}
	mult := int64(1)
	if i > 0 {
		mult, err = strconv.ParseInt(per[:i], 10, 64)
		if err != nil || mult < 1 {
			return Rate{}, fmt.Errorf("invalid rate %q: bad multiplier", s)
		}
	}
	unit, ok := periods[strings.ToLower(per[i:])]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: unknown period %q", s, per[i:])
	}
	return Rate{Limit: limit, Window: time.Duration(mult) * unit, raw: s}, nil
}

// ParseRates parses a list of rates.
func ParseRates(raw []string) ([]Rate, error) {
	rates := make([]Rate, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRate(s)
		if err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}
	return rates, nil
}
