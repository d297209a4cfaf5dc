package exit

import (
	"testing"
	"time"

	"github.com/koshedutech/equities-trader/internal/smartmoney"
)

func neutralSignal(string) smartmoney.Sentiment { return smartmoney.SentimentNeutral }

func TestEvaluate_StopLossTriggers(t *testing.T) {
	lvl := &Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 97, TakeProfitPrice: 106, OpenedAt: time.Now()}

	sig, ok := evaluate(lvl, 96.5, neutralSignal)
	if !ok || sig.Reason != ReasonStopLoss || sig.Severity != SeverityCritical {
		t.Errorf("evaluate at stop-loss price = %+v, ok=%v, want STOP_LOSS/CRITICAL", sig, ok)
	}
}

func TestEvaluate_TakeProfitTriggers(t *testing.T) {
	lvl := &Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 97, TakeProfitPrice: 106, OpenedAt: time.Now()}

	sig, ok := evaluate(lvl, 107, neutralSignal)
	if !ok || sig.Reason != ReasonTakeProfit || sig.Severity != SeverityHigh {
		t.Errorf("evaluate at take-profit price = %+v, ok=%v, want TAKE_PROFIT/HIGH", sig, ok)
	}
}

func TestEvaluate_TrailingStopActivatesAndTriggers(t *testing.T) {
	lvl := &Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 90, TakeProfitPrice: 200, OpenedAt: time.Now()}

	// Run up to +8% to activate trailing and set a high water mark.
	if _, ok := evaluate(lvl, 108, neutralSignal); ok {
		t.Fatal("should not exit on the run-up tick")
	}
	if !lvl.TrailingActive {
		t.Fatal("trailing should activate above +4% unrealized gain")
	}
	wantTrailing := 108 * (1 - trailingDistancePct)
	if lvl.TrailingStopPrice != wantTrailing {
		t.Errorf("TrailingStopPrice = %v, want %v", lvl.TrailingStopPrice, wantTrailing)
	}

	// Pull back through the trailing stop.
	sig, ok := evaluate(lvl, wantTrailing-0.01, neutralSignal)
	if !ok || sig.Reason != ReasonTrailingStop {
		t.Errorf("evaluate after pullback = %+v, ok=%v, want TRAILING_STOP", sig, ok)
	}
}

func TestEvaluate_TimeExitOnStagnation(t *testing.T) {
	lvl := &Level{
		AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100,
		StopLossPrice: 90, TakeProfitPrice: 200,
		OpenedAt: time.Now().Add(-11 * 24 * time.Hour),
	}

	sig, ok := evaluate(lvl, 100.3, neutralSignal) // +0.3%, within the 1% stagnation band
	if !ok || sig.Reason != ReasonTimeExit {
		t.Errorf("evaluate after 11 stagnant days = %+v, ok=%v, want TIME_EXIT", sig, ok)
	}
}

func TestEvaluate_SignalExitOnStrongBearish(t *testing.T) {
	lvl := &Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 90, TakeProfitPrice: 200, OpenedAt: time.Now()}
	bearish := func(string) smartmoney.Sentiment { return smartmoney.SentimentStrongBearish }

	sig, ok := evaluate(lvl, 102, bearish) // profitable, strong bearish smart money
	if !ok || sig.Reason != ReasonSignalExit {
		t.Errorf("evaluate with strong bearish signal while profitable = %+v, ok=%v, want SIGNAL_EXIT", sig, ok)
	}
}

func TestEvaluate_NoExitWhenNothingTriggers(t *testing.T) {
	lvl := &Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 90, TakeProfitPrice: 200, OpenedAt: time.Now()}

	_, ok := evaluate(lvl, 101, neutralSignal)
	if ok {
		t.Error("expected no exit signal for a calm, in-range position")
	}
}

func TestEngine_RegisterSweepRemove(t *testing.T) {
	e := New()
	e.Register(Level{AgentID: "a1", Symbol: "AAPL", Quantity: 10, EntryPrice: 100, StopLossPrice: 97, TakeProfitPrice: 110, OpenedAt: time.Now()})

	prices := map[string]float64{"AAPL": 96}
	signals := e.Sweep(func(symbol string) (float64, bool) { p, ok := prices[symbol]; return p, ok }, neutralSignal)

	if len(signals) != 1 || signals[0].Reason != ReasonStopLoss {
		t.Errorf("Sweep() = %+v, want one STOP_LOSS signal", signals)
	}

	e.Remove("a1", "AAPL")
	if _, ok := e.Get("a1", "AAPL"); ok {
		t.Error("expected level to be removed")
	}
}

func TestCreateExitLevels_ClampsWithinBounds(t *testing.T) {
	lvl := CreateExitLevels("a1", "AAPL", 100, 10, 80, 20, RiskMedium, smartmoney.SentimentNeutral)

	slPct := (lvl.EntryPrice - lvl.StopLossPrice) / lvl.EntryPrice
	tpPct := (lvl.TakeProfitPrice - lvl.EntryPrice) / lvl.EntryPrice

	if slPct < minStopLossPct || slPct > maxStopLossPct {
		t.Errorf("stop-loss pct = %v, want within [%v, %v]", slPct, minStopLossPct, maxStopLossPct)
	}
	if tpPct < minTakeProfitPct || tpPct > maxTakeProfitPct {
		t.Errorf("take-profit pct = %v, want within [%v, %v]", tpPct, minTakeProfitPct, maxTakeProfitPct)
	}
}

func TestCreateExitLevels_HighRiskNarrowsStopLoss(t *testing.T) {
	medium := CreateExitLevels("a1", "AAPL", 100, 10, 80, 20, RiskMedium, smartmoney.SentimentNeutral)
	high := CreateExitLevels("a1", "AAPL", 100, 10, 80, 20, RiskHigh, smartmoney.SentimentNeutral)

	if high.StopLossPrice <= medium.StopLossPrice {
		t.Errorf("high-risk stop-loss should be tighter (higher price): high=%v medium=%v", high.StopLossPrice, medium.StopLossPrice)
	}
}

func TestPartialTakeProfit(t *testing.T) {
	lvl := &Level{EntryPrice: 100}

	if PartialTakeProfit(lvl, 105) {
		t.Error("should not trigger below the +6% partial threshold")
	}
	if !PartialTakeProfit(lvl, 106.5) {
		t.Error("should trigger at or above the +6% partial threshold")
	}

	lvl.PartialTaken = true
	if PartialTakeProfit(lvl, 110) {
		t.Error("should not trigger twice once PartialTaken is set")
	}
}
