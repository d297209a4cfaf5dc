// Package circuit implements the per-agent circuit breaker: rolling
// daily/weekly P&L and consecutive win/loss tracking that pauses an
// agent's trading when it breaches a drawdown or losing-streak
// threshold, auto-releasing once the pause deadline elapses.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/config"
)

// PauseReason identifies which threshold triggered an active pause.
type PauseReason string

const (
	PauseNone              PauseReason = ""
	PauseDailyDrawdown     PauseReason = "PAUSED_DAILY_DRAWDOWN"
	PauseWeeklyDrawdown    PauseReason = "PAUSED_WEEKLY_DRAWDOWN"
	PauseConsecutiveLosses PauseReason = "PAUSED_CONSECUTIVE_LOSSES"
)

type agentState struct {
	dailyPnL        float64
	dailyDate       time.Time
	weeklyPnL       float64
	weeklyWeekStart time.Time

	consecutiveWins   int
	consecutiveLosses int

	pauseReason PauseReason
	pauseUntil  time.Time
}

// Breaker tracks circuit-breaker state for every agent it has seen.
type Breaker struct {
	cfg config.CircuitBreakerConfig

	mu     sync.Mutex
	agents map[string]*agentState
}

// New builds a Breaker governed by cfg's thresholds.
func New(cfg config.CircuitBreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, agents: make(map[string]*agentState)}
}

// CanTrade reports whether agentID may trade right now given capital,
// resetting daily/weekly buckets on calendar rollover and releasing
// any pause whose deadline has passed before evaluating thresholds.
func (b *Breaker) CanTrade(agentID string, capital float64) (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(agentID)
	now := time.Now()
	b.resetIfRolledOver(st, now)
	b.releaseIfExpired(st, now)

	if st.pauseReason != PauseNone {
		return false, fmt.Sprintf("%s until %s", st.pauseReason, st.pauseUntil.Format(time.RFC3339))
	}

	if capital > 0 {
		if dd := -st.dailyPnL / capital * 100; dd >= b.cfg.DailyDrawdownPercent {
			st.pauseReason = PauseDailyDrawdown
			st.pauseUntil = now.Add(time.Duration(b.cfg.DailyPauseHours) * time.Hour)
			return false, fmt.Sprintf("%s until %s", st.pauseReason, st.pauseUntil.Format(time.RFC3339))
		}
		if dd := -st.weeklyPnL / capital * 100; dd >= b.cfg.WeeklyDrawdownPercent {
			st.pauseReason = PauseWeeklyDrawdown
			st.pauseUntil = now.Add(time.Duration(b.cfg.WeeklyPauseDays) * 24 * time.Hour)
			return false, fmt.Sprintf("%s until %s", st.pauseReason, st.pauseUntil.Format(time.RFC3339))
		}
	}

	if st.consecutiveLosses >= b.cfg.ConsecutiveLossLimit {
		st.pauseReason = PauseConsecutiveLosses
		st.pauseUntil = now.Add(time.Duration(b.cfg.ConsecutivePauseHours) * time.Hour)
		return false, fmt.Sprintf("%s until %s", st.pauseReason, st.pauseUntil.Format(time.RFC3339))
	}

	return true, ""
}

// RecordTradeResult updates an agent's rolling daily/weekly P&L and
// win/loss streaks after a trade closes. No per-period trade count is
// kept. A pnl of zero counts as a win.
func (b *Breaker) RecordTradeResult(agentID string, pnl, capital float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(agentID)
	now := time.Now()
	b.resetIfRolledOver(st, now)

	st.dailyPnL += pnl
	st.weeklyPnL += pnl

	if pnl >= 0 {
		st.consecutiveWins++
		st.consecutiveLosses = 0
	} else {
		st.consecutiveLosses++
		st.consecutiveWins = 0
	}
}

// GetSizingMultiplier returns the streak-derived Kelly modifier: 1.2
// after a hot streak (5+ consecutive wins), 0.7 after a cold one (3+
// consecutive losses), 1.0 otherwise.
func (b *Breaker) GetSizingMultiplier(agentID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(agentID)
	switch {
	case st.consecutiveWins >= 5:
		return 1.2
	case st.consecutiveLosses >= 3:
		return 0.7
	default:
		return 1.0
	}
}

// Streaks returns agentID's current consecutive win/loss counts, for
// callers (position sizing) that need the raw streak rather than the
// derived multiplier.
func (b *Breaker) Streaks(agentID string) (wins, losses int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(agentID)
	return st.consecutiveWins, st.consecutiveLosses
}

// stateFor returns agentID's state, creating it on first sight. Caller
// must hold b.mu.
func (b *Breaker) stateFor(agentID string) *agentState {
	st, ok := b.agents[agentID]
	if !ok {
		now := time.Now()
		st = &agentState{
			dailyDate:       startOfDay(now),
			weeklyWeekStart: startOfWeek(now),
		}
		b.agents[agentID] = st
	}
	return st
}

// resetIfRolledOver zeroes the daily/weekly buckets when the calendar
// date has advanced past their tracked window. Caller must hold b.mu.
func (b *Breaker) resetIfRolledOver(st *agentState, now time.Time) {
	if today := startOfDay(now); today.After(st.dailyDate) {
		st.dailyPnL = 0
		st.dailyDate = today
	}
	if week := startOfWeek(now); week.After(st.weeklyWeekStart) {
		st.weeklyPnL = 0
		st.weeklyWeekStart = week
	}
}

// releaseIfExpired clears an active pause once its deadline has
// passed; releasing a consecutive-loss pause also resets the loss
// streak. Caller must hold b.mu.
func (b *Breaker) releaseIfExpired(st *agentState, now time.Time) {
	if st.pauseReason != PauseNone && now.After(st.pauseUntil) {
		if st.pauseReason == PauseConsecutiveLosses {
			st.consecutiveLosses = 0
		}
		st.pauseReason = PauseNone
		st.pauseUntil = time.Time{}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the most recent Monday's start-of-day.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	return day.AddDate(0, 0, -offset)
}
