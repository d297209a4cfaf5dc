package earnings

import (
	"context"
	"testing"
	"time"

	"github.com/koshedutech/equities-trader/internal/cache"
)

type fakeSource struct {
	futureDate time.Time
	hasFuture  bool
	pastDate   time.Time
	hasPast    bool
	calls      int
}

func (f *fakeSource) NextEarningsDate(ctx context.Context, symbol string) (time.Time, bool, time.Time, bool, error) {
	f.calls++
	return f.futureDate, f.hasFuture, f.pastDate, f.hasPast, nil
}

func TestCheck_HighRiskWithinThreeDays(t *testing.T) {
	src := &fakeSource{futureDate: time.Now().Add(2 * 24 * time.Hour), hasFuture: true}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, err := cal.Check(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if info.Risk != RiskHigh || !info.ShouldAvoidBuy || info.PositionSizeMultiplier != 0.0 {
		t.Errorf("2-day-out earnings = %+v, want HIGH/avoid/0.0", info)
	}
}

func TestCheck_MediumRiskWithinWeek(t *testing.T) {
	src := &fakeSource{futureDate: time.Now().Add(5 * 24 * time.Hour), hasFuture: true}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, _ := cal.Check(context.Background(), "MSFT")
	if info.Risk != RiskMedium || info.ShouldAvoidBuy || info.PositionSizeMultiplier != 0.5 {
		t.Errorf("5-day-out earnings = %+v, want MEDIUM/no-avoid/0.5", info)
	}
}

func TestCheck_LowRiskWithinTwoWeeks(t *testing.T) {
	src := &fakeSource{futureDate: time.Now().Add(10 * 24 * time.Hour), hasFuture: true}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, _ := cal.Check(context.Background(), "GOOG")
	if info.Risk != RiskLow || info.PositionSizeMultiplier != 0.75 {
		t.Errorf("10-day-out earnings = %+v, want LOW/0.75", info)
	}
}

func TestCheck_NoneWhenFarOut(t *testing.T) {
	src := &fakeSource{futureDate: time.Now().Add(30 * 24 * time.Hour), hasFuture: true}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, _ := cal.Check(context.Background(), "AMZN")
	if info.Risk != RiskNone || info.PositionSizeMultiplier != 1.0 {
		t.Errorf("30-day-out earnings = %+v, want NONE/1.0", info)
	}
}

func TestCheck_RecentPastEarningsVolatility(t *testing.T) {
	src := &fakeSource{pastDate: time.Now().Add(-1 * 24 * time.Hour), hasPast: true}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, _ := cal.Check(context.Background(), "TSLA")
	if info.Risk != RiskMedium || info.PositionSizeMultiplier != 0.75 {
		t.Errorf("recent past earnings = %+v, want MEDIUM/0.75", info)
	}
}

func TestCheck_NoEarningsKnown(t *testing.T) {
	src := &fakeSource{}
	cal := NewCalendar(src, cache.NewMemoryCache())

	info, _ := cal.Check(context.Background(), "NFLX")
	if info.Risk != RiskNone || info.PositionSizeMultiplier != 1.0 {
		t.Errorf("no earnings known = %+v, want NONE/1.0", info)
	}
}

func TestCheck_CachesResultAcrossCalls(t *testing.T) {
	src := &fakeSource{futureDate: time.Now().Add(2 * 24 * time.Hour), hasFuture: true}
	cal := NewCalendar(src, cache.NewMemoryCache())
	ctx := context.Background()

	if _, err := cal.Check(ctx, "AAPL"); err != nil {
		t.Fatalf("first Check error: %v", err)
	}
	if _, err := cal.Check(ctx, "AAPL"); err != nil {
		t.Fatalf("second Check error: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1 (second call should hit cache)", src.calls)
	}
}
