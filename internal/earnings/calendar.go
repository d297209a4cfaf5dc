// Package earnings reports a symbol's proximity to its next earnings
// date and the position-size implications of that proximity.
package earnings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koshedutech/equities-trader/internal/cache"
)

// Risk buckets earnings proximity.
type Risk string

const (
	RiskHigh   Risk = "HIGH"
	RiskMedium Risk = "MEDIUM"
	RiskLow    Risk = "LOW"
	RiskNone   Risk = "NONE"
)

const cacheTTL = 6 * time.Hour

// Info is the earnings-blackout verdict for one symbol.
type Info struct {
	EarningsDate           *time.Time
	DaysUntil              int
	Risk                   Risk
	ShouldAvoidBuy         bool
	PositionSizeMultiplier float64
	Message                string
}

// Source looks up the next (or most recent past) earnings date for a
// symbol. Implementations wrap a market-data provider; Calendar never
// talks to a transport directly.
type Source interface {
	NextEarningsDate(ctx context.Context, symbol string) (date time.Time, hasFuture bool, lastDate time.Time, hasPast bool, err error)
}

// Calendar checks earnings proximity with a mandatory 6-hour cache per
// symbol to bound calls into Source.
type Calendar struct {
	source Source
	cache  cache.TTLCache
}

// NewCalendar builds a Calendar backed by source and cache.
func NewCalendar(source Source, c cache.TTLCache) *Calendar {
	return &Calendar{source: source, cache: c}
}

// Check returns earnings proximity info for symbol, serving from cache
// when available and falling through to Source on a miss.
func (c *Calendar) Check(ctx context.Context, symbol string) (Info, error) {
	key := "earnings:" + symbol

	if cached, ok := c.cache.Get(ctx, key); ok {
		var info Info
		if err := json.Unmarshal(cached, &info); err == nil {
			return info, nil
		}
	}

	futureDate, hasFuture, pastDate, hasPast, err := c.source.NextEarningsDate(ctx, symbol)
	if err != nil {
		return Info{}, fmt.Errorf("earnings: fetch %s: %w", symbol, err)
	}

	info := classify(futureDate, hasFuture, pastDate, hasPast)

	if encoded, err := json.Marshal(info); err == nil {
		c.cache.Set(ctx, key, encoded, cacheTTL)
	}

	return info, nil
}

func classify(futureDate time.Time, hasFuture bool, pastDate time.Time, hasPast bool) Info {
	now := time.Now()

	if hasFuture {
		daysUntil := daysBetween(now, futureDate)
		risk, avoid, multiplier, message := bucketFuture(daysUntil)
		date := futureDate
		return Info{
			EarningsDate:           &date,
			DaysUntil:              daysUntil,
			Risk:                   risk,
			ShouldAvoidBuy:         avoid,
			PositionSizeMultiplier: multiplier,
			Message:                message,
		}
	}

	if hasPast {
		daysSince := daysBetween(pastDate, now)
		if daysSince <= 2 {
			date := pastDate
			return Info{
				EarningsDate:           &date,
				DaysUntil:              -daysSince,
				Risk:                   RiskMedium,
				ShouldAvoidBuy:         false,
				PositionSizeMultiplier: 0.75,
				Message:                "recent earnings volatility",
			}
		}
	}

	return Info{
		Risk:                   RiskNone,
		ShouldAvoidBuy:         false,
		PositionSizeMultiplier: 1.0,
		Message:                "no earnings event in range",
	}
}

func bucketFuture(daysUntil int) (risk Risk, avoid bool, multiplier float64, message string) {
	switch {
	case daysUntil <= 3:
		return RiskHigh, true, 0.0, "earnings imminent, avoid new positions"
	case daysUntil <= 7:
		return RiskMedium, false, 0.5, "earnings within a week, reduce size"
	case daysUntil <= 14:
		return RiskLow, false, 0.75, "earnings approaching, modest size reduction"
	default:
		return RiskNone, false, 1.0, "no near-term earnings risk"
	}
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
