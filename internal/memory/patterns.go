package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/internal/database"
)

const (
	patternIndexWindow     = 30 * 24 * time.Hour
	patternIndexRefreshTTL = 30 * time.Minute
	topPatternThresholdPct = 2.0
	topPatternLimit        = 20
)

// Recommendation is the pattern index's verdict for a prospective setup.
type Recommendation struct {
	Score int
	Band  string // FAVORABLE | NEUTRAL | UNFAVORABLE
}

// PatternIndex is an in-memory index over the last 30 days of closed
// winning trade memories, refreshed on demand whenever it goes stale.
// It groups patterns by entry hour, sector, RSI range, and volume
// bucket to answer "has this kind of setup worked before" queries
// without hitting the database on every decision.
type PatternIndex struct {
	repo *database.Repository

	mu             sync.RWMutex
	patterns       []*database.WinningPatternRow
	topPatterns    []*database.WinningPatternRow
	byHour         map[int]int
	bySector       map[string]int
	byRSIRange     map[string]int
	byVolumeBucket map[string]int
	lastRefresh    time.Time
}

// NewPatternIndex builds an empty PatternIndex over repo. Callers must
// call EnsureFresh before the first read.
func NewPatternIndex(repo *database.Repository) *PatternIndex {
	return &PatternIndex{repo: repo}
}

// EnsureFresh refreshes the index if it has never been loaded or is
// older than 30 minutes.
func (p *PatternIndex) EnsureFresh(ctx context.Context) error {
	p.mu.RLock()
	stale := time.Since(p.lastRefresh) > patternIndexRefreshTTL
	p.mu.RUnlock()

	if !stale {
		return nil
	}
	return p.Refresh(ctx)
}

// Refresh reloads the index unconditionally from the last 30 days of
// winning patterns.
func (p *PatternIndex) Refresh(ctx context.Context) error {
	since := time.Now().Add(-patternIndexWindow)
	patterns, err := p.repo.ListWinningPatternsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("memory: refresh pattern index: %w", err)
	}

	byHour := make(map[int]int)
	bySector := make(map[string]int)
	byRSIRange := make(map[string]int)
	byVolumeBucket := make(map[string]int)

	var top []*database.WinningPatternRow
	for _, pat := range patterns {
		byHour[pat.EntryHour]++
		bySector[pat.Sector]++
		byRSIRange[rsiRangeOf(pat.RSIAtEntry)]++
		byVolumeBucket[volumeBucketOf(pat.VolumeRatio)]++

		if pat.PnLPercent > topPatternThresholdPct {
			top = append(top, pat)
		}
	}

	sort.Slice(top, func(i, j int) bool { return top[i].PnLPercent > top[j].PnLPercent })
	if len(top) > topPatternLimit {
		top = top[:topPatternLimit]
	}

	p.mu.Lock()
	p.patterns = patterns
	p.topPatterns = top
	p.byHour = byHour
	p.bySector = bySector
	p.byRSIRange = byRSIRange
	p.byVolumeBucket = byVolumeBucket
	p.lastRefresh = time.Now()
	p.mu.Unlock()

	return nil
}

// TopPatterns returns up to limit of the highest-pnl_percent qualifying
// setups (pnl_percent > 2%), used by get_pre_decision_context.
func (p *PatternIndex) TopPatterns(limit int) []*database.WinningPatternRow {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limit > len(p.topPatterns) {
		limit = len(p.topPatterns)
	}
	out := make([]*database.WinningPatternRow, limit)
	copy(out, p.topPatterns[:limit])
	return out
}

// GetPatternRecommendation scores a prospective setup against the
// index: a base of 50 with additive adjustments for an hour matching
// the index's best-represented hour, a sector with above-average
// representation, a favorable/unfavorable RSI range, and a volume
// ratio outside normal bounds.
func (p *PatternIndex) GetPatternRecommendation(sector string, rsi *float64, hour *int, volumeRatio *float64) Recommendation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	score := 50

	if hour != nil && p.bestHour() == *hour && len(p.byHour) > 0 {
		score += 15
	}

	if sector != "" && p.isPerformingSector(sector) {
		score += 10
	}

	if rsi != nil {
		switch p.rsiFavorability(*rsi) {
		case favorabilityFavorable:
			score += 15
		case favorabilityUnfavorable:
			score -= 15
		}
	}

	if volumeRatio != nil {
		switch {
		case *volumeRatio > 1.5:
			score += 10
		case *volumeRatio < 0.5:
			score -= 10
		}
	}

	return Recommendation{Score: score, Band: bandOf(score)}
}

type favorability int

const (
	favorabilityNeutral favorability = iota
	favorabilityFavorable
	favorabilityUnfavorable
)

func (p *PatternIndex) bestHour() int {
	best, bestCount := -1, 0
	for hour, count := range p.byHour {
		if count > bestCount {
			best, bestCount = hour, count
		}
	}
	return best
}

// isPerformingSector reports whether sector's share of indexed patterns
// is at or above the average share across all represented sectors.
func (p *PatternIndex) isPerformingSector(sector string) bool {
	if len(p.bySector) == 0 {
		return false
	}

	total := 0
	for _, count := range p.bySector {
		total += count
	}
	average := float64(total) / float64(len(p.bySector))

	return float64(p.bySector[sector]) >= average
}

// rsiFavorability reports whether rsi's bucket is well-represented
// (favorable), entirely absent (unfavorable), or in between (neutral)
// among indexed winning setups.
func (p *PatternIndex) rsiFavorability(rsi float64) favorability {
	if len(p.byRSIRange) == 0 {
		return favorabilityNeutral
	}

	count := p.byRSIRange[rsiRangeOf(rsi)]
	if count == 0 {
		return favorabilityUnfavorable
	}

	total := 0
	for _, c := range p.byRSIRange {
		total += c
	}
	average := float64(total) / float64(len(p.byRSIRange))

	if float64(count) >= average {
		return favorabilityFavorable
	}
	return favorabilityNeutral
}

func rsiRangeOf(rsi float64) string {
	switch {
	case rsi < 30:
		return "0-30"
	case rsi < 40:
		return "30-40"
	case rsi < 60:
		return "40-60"
	case rsi < 70:
		return "60-70"
	default:
		return "70+"
	}
}

func volumeBucketOf(ratio float64) string {
	switch {
	case ratio > 1.5:
		return "high"
	case ratio < 0.5:
		return "low"
	default:
		return "normal"
	}
}

func bandOf(score int) string {
	switch {
	case score >= 70:
		return "FAVORABLE"
	case score < 50:
		return "UNFAVORABLE"
	default:
		return "NEUTRAL"
	}
}
