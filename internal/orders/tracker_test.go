package orders

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestLedger() *Ledger {
	return NewLedger(zerolog.Nop())
}

func TestRecordEntry_OpensNewPosition(t *testing.T) {
	l := newTestLedger()
	l.RecordEntry("agent-1", "AAPL", "order-1", 150.0, 10)

	pos, ok := l.Position("agent-1", "AAPL")
	if !ok {
		t.Fatal("expected tracked position")
	}
	if pos.Status != StatusActive {
		t.Errorf("status = %s, want ACTIVE", pos.Status)
	}
	if pos.RemainingQuantity != 10 {
		t.Errorf("remaining qty = %v, want 10", pos.RemainingQuantity)
	}
	if pos.EntryPrice != 150.0 {
		t.Errorf("entry price = %v, want 150", pos.EntryPrice)
	}
}

func TestRecordEntry_WeightedAverageOnReentry(t *testing.T) {
	l := newTestLedger()
	l.RecordEntry("agent-1", "AAPL", "order-1", 100.0, 10)
	l.RecordEntry("agent-1", "AAPL", "order-2", 200.0, 10)

	pos, _ := l.Position("agent-1", "AAPL")
	if pos.EntryPrice != 150.0 {
		t.Errorf("weighted entry price = %v, want 150", pos.EntryPrice)
	}
	if pos.RemainingQuantity != 20 {
		t.Errorf("remaining qty = %v, want 20", pos.RemainingQuantity)
	}
}

func TestRecordExit_PartialLeavesPositionOpen(t *testing.T) {
	l := newTestLedger()
	l.RecordEntry("agent-1", "AAPL", "order-1", 100.0, 10)
	l.RecordExit("agent-1", "AAPL", "order-2", 110.0, 4, 40, "take_profit")

	pos, _ := l.Position("agent-1", "AAPL")
	if pos.Status != StatusPartial {
		t.Errorf("status = %s, want PARTIAL", pos.Status)
	}
	if pos.RemainingQuantity != 6 {
		t.Errorf("remaining qty = %v, want 6", pos.RemainingQuantity)
	}
	if pos.RealizedPnL != 40 {
		t.Errorf("realized pnl = %v, want 40", pos.RealizedPnL)
	}
}

func TestRecordExit_FullClosesPosition(t *testing.T) {
	l := newTestLedger()
	l.RecordEntry("agent-1", "AAPL", "order-1", 100.0, 10)
	l.RecordExit("agent-1", "AAPL", "order-2", 90.0, 10, -100, "stop_loss")

	pos, _ := l.Position("agent-1", "AAPL")
	if pos.Status != StatusClosed {
		t.Errorf("status = %s, want CLOSED", pos.Status)
	}
	if pos.ClosedAt == nil {
		t.Error("expected ClosedAt to be set")
	}
}

func TestRecordExit_NoTrackedEntryIsNoop(t *testing.T) {
	l := newTestLedger()
	l.RecordExit("agent-1", "AAPL", "order-1", 100.0, 10, 0, "forced")

	if _, ok := l.Position("agent-1", "AAPL"); ok {
		t.Error("expected no tracked position")
	}
}

func TestImpactDirectionFor(t *testing.T) {
	cases := []struct {
		pnl  float64
		want ImpactDirection
	}{
		{10, ImpactBetter},
		{-10, ImpactWorse},
		{0, ImpactNeutral},
	}
	for _, c := range cases {
		if got := impactDirectionFor(c.pnl); got != c.want {
			t.Errorf("impactDirectionFor(%v) = %s, want %s", c.pnl, got, c.want)
		}
	}
}

func TestRecentEvents_OrderedOldestFirst(t *testing.T) {
	l := newTestLedger()
	l.RecordEntry("agent-1", "AAPL", "order-1", 100.0, 10)
	l.RecordExit("agent-1", "AAPL", "order-2", 110.0, 10, 100, "take_profit")

	events := l.RecentEvents(10)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != EventEntryFilled {
		t.Errorf("events[0].EventType = %s, want ENTRY_FILLED", events[0].EventType)
	}
	if events[1].EventType != EventExitFilled {
		t.Errorf("events[1].EventType = %s, want EXIT_FILLED", events[1].EventType)
	}
}

func TestRecentEvents_CapsAtRequestedCount(t *testing.T) {
	l := newTestLedger()
	for i := 0; i < 5; i++ {
		l.RecordEntry("agent-1", "AAPL", "order", 100, 1)
	}
	if got := l.RecentEvents(2); len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}
