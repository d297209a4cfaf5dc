package circuit

import (
	"testing"
	"time"

	"github.com/koshedutech/equities-trader/config"
)

func testConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:               true,
		DailyDrawdownPercent:  5.0,
		WeeklyDrawdownPercent: 10.0,
		ConsecutiveLossLimit:  5,
		DailyPauseHours:       24,
		WeeklyPauseDays:       7,
		ConsecutivePauseHours: 4,
	}
}

func TestCanTrade_AllowsFreshAgent(t *testing.T) {
	b := New(testConfig())
	ok, reason := b.CanTrade("agent-1", 10000)
	if !ok {
		t.Errorf("fresh agent should be allowed to trade, got reason %q", reason)
	}
}

func TestCanTrade_PausesOnDailyDrawdown(t *testing.T) {
	b := New(testConfig())
	b.RecordTradeResult("agent-1", -600, 10000) // -6% > 5% threshold

	ok, reason := b.CanTrade("agent-1", 10000)
	if ok {
		t.Error("expected agent to be paused after exceeding daily drawdown")
	}
	if reason == "" {
		t.Error("expected a non-empty pause reason")
	}
}

func TestCanTrade_PausesAfterFiveConsecutiveLosses(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 5; i++ {
		b.RecordTradeResult("agent-1", -10, 100000) // small losses, no drawdown breach
	}

	ok, reason := b.CanTrade("agent-1", 100000)
	if ok {
		t.Error("expected agent to be paused after 5 consecutive losses")
	}
	if reason == "" {
		t.Error("expected a non-empty pause reason")
	}
}

func TestCanTrade_DisabledBreakerAlwaysAllows(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	b := New(cfg)
	b.RecordTradeResult("agent-1", -10000, 10000)

	ok, _ := b.CanTrade("agent-1", 10000)
	if !ok {
		t.Error("disabled breaker should always allow trading")
	}
}

func TestRecordTradeResult_TracksStreaks(t *testing.T) {
	b := New(testConfig())
	b.RecordTradeResult("agent-1", 50, 10000)
	b.RecordTradeResult("agent-1", 50, 10000)

	st := b.stateFor("agent-1")
	if st.consecutiveWins != 2 {
		t.Errorf("consecutiveWins = %d, want 2", st.consecutiveWins)
	}

	b.RecordTradeResult("agent-1", -50, 10000)
	if st.consecutiveWins != 0 || st.consecutiveLosses != 1 {
		t.Errorf("after a loss, wins=%d losses=%d, want 0/1", st.consecutiveWins, st.consecutiveLosses)
	}
}

func TestGetSizingMultiplier(t *testing.T) {
	b := New(testConfig())
	if got := b.GetSizingMultiplier("agent-1"); got != 1.0 {
		t.Errorf("fresh agent multiplier = %v, want 1.0", got)
	}

	for i := 0; i < 5; i++ {
		b.RecordTradeResult("agent-1", 10, 100000)
	}
	if got := b.GetSizingMultiplier("agent-1"); got != 1.2 {
		t.Errorf("hot-streak multiplier = %v, want 1.2", got)
	}
}

func TestGetSizingMultiplier_ColdStreak(t *testing.T) {
	b := New(testConfig())
	for i := 0; i < 3; i++ {
		b.RecordTradeResult("agent-2", -10, 100000)
	}
	if got := b.GetSizingMultiplier("agent-2"); got != 0.7 {
		t.Errorf("cold-streak multiplier = %v, want 0.7", got)
	}
}

func TestCanTrade_PauseReleasesAfterDeadline(t *testing.T) {
	b := New(testConfig())
	b.RecordTradeResult("agent-1", -600, 10000)
	if ok, _ := b.CanTrade("agent-1", 10000); ok {
		t.Fatal("expected the daily drawdown to pause the agent first")
	}

	st := b.stateFor("agent-1")
	st.pauseUntil = time.Now().Add(-time.Minute)  // force expiry
	st.dailyDate = st.dailyDate.AddDate(0, 0, -1) // a full daily pause always spans a day rollover

	ok, _ := b.CanTrade("agent-1", 10000)
	if !ok {
		t.Error("expected pause to auto-release once its deadline has passed")
	}
}

func TestStartOfWeek_AlwaysMonday(t *testing.T) {
	sunday := time.Date(2026, 8, 2, 15, 0, 0, 0, time.UTC) // a Sunday
	week := startOfWeek(sunday)
	if week.Weekday() != time.Monday {
		t.Errorf("startOfWeek(%v) = %v, want a Monday", sunday, week)
	}
}
