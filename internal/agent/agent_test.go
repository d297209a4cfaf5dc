package agent

import (
	"testing"

	"github.com/koshedutech/equities-trader/internal/database"
)

func TestApplyFill_BuyWeightedAveragesEntryPrice(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 10000)
	a.applyFill(database.DecisionBuy, "AAPL", 10, 100, 1)
	a.applyFill(database.DecisionBuy, "AAPL", 10, 200, 1)

	pos, ok := a.Position("AAPL")
	if !ok {
		t.Fatal("expected a position in AAPL")
	}
	if pos.Qty != 20 {
		t.Errorf("qty = %v, want 20", pos.Qty)
	}
	if pos.AvgEntryPrice != 150 {
		t.Errorf("avg entry price = %v, want 150", pos.AvgEntryPrice)
	}

	wantCapital := 10000.0 - (10*100 + 1) - (10*200 + 1)
	if a.Capital() != wantCapital {
		t.Errorf("capital = %v, want %v", a.Capital(), wantCapital)
	}
}

func TestApplyFill_SellClosesPositionAndRecordsRealizedPnL(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 10000)
	a.applyFill(database.DecisionBuy, "AAPL", 10, 100, 0)
	realized := a.applyFill(database.DecisionSell, "AAPL", 10, 120, 0)

	if realized != 200 {
		t.Errorf("realized pnl = %v, want 200", realized)
	}
	if _, ok := a.Position("AAPL"); ok {
		t.Error("expected position to be removed once qty reaches zero")
	}
	if a.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", a.WinningTrades)
	}
}

func TestApplyFill_PartialSellKeepsRemainder(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 10000)
	a.applyFill(database.DecisionBuy, "AAPL", 10, 100, 0)
	a.applyFill(database.DecisionSell, "AAPL", 4, 90, 0)

	pos, ok := a.Position("AAPL")
	if !ok {
		t.Fatal("expected position to remain open")
	}
	if pos.Qty != 6 {
		t.Errorf("remaining qty = %v, want 6", pos.Qty)
	}
	if a.LosingTrades != 1 {
		t.Errorf("losing trades = %d, want 1", a.LosingTrades)
	}
}

func TestPerformancePct(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 1000)
	a.applyFill(database.DecisionBuy, "AAPL", 1, 100, 0)
	a.applyFill(database.DecisionSell, "AAPL", 1, 150, 0)

	if got := a.PerformancePct(); got != 5 {
		t.Errorf("performance = %v%%, want 5%%", got)
	}
}

func TestPositionCount(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 10000)
	if a.PositionCount() != 0 {
		t.Fatalf("expected zero positions at start")
	}
	a.applyFill(database.DecisionBuy, "AAPL", 1, 100, 0)
	a.applyFill(database.DecisionBuy, "MSFT", 1, 100, 0)
	if got := a.PositionCount(); got != 2 {
		t.Errorf("position count = %d, want 2", got)
	}
}

func TestSnapshot_ReflectsCounters(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 5000)
	a.applyFill(database.DecisionBuy, "AAPL", 1, 100, 0)
	a.applyFill(database.DecisionSell, "AAPL", 1, 110, 0)

	snap := a.Snapshot()
	if snap.TradeCount != 2 {
		t.Errorf("trade count = %d, want 2", snap.TradeCount)
	}
	if snap.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", snap.WinningTrades)
	}
	if snap.InitialCapital != 5000 {
		t.Errorf("initial capital = %v, want 5000", snap.InitialCapital)
	}
}

func TestBumpAutocritiqueCounter_FiresAtThreshold(t *testing.T) {
	a := NewAgent("a1", "Test", "model", "", 1000)
	var due bool
	for i := 0; i < autocritiqueEvery; i++ {
		_, due = a.bumpAutocritiqueCounter()
	}
	if !due {
		t.Errorf("expected due=true after %d bumps", autocritiqueEvery)
	}
	a.resetAutocritiqueCounter("critique text")
	if a.AutocritiqueCounter != 0 {
		t.Errorf("counter = %d, want 0 after reset", a.AutocritiqueCounter)
	}
	if a.LastAutocritique != "critique text" {
		t.Errorf("LastAutocritique = %q", a.LastAutocritique)
	}
}
