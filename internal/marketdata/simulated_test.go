package marketdata

import (
	"context"
	"testing"
)

func TestSimulated_VIXBounds(t *testing.T) {
	s := NewSimulated()
	for i := 0; i < 50; i++ {
		v, err := s.VIX(context.Background())
		if err != nil {
			t.Fatalf("VIX: %v", err)
		}
		if v < 9 || v > 45 {
			t.Errorf("VIX out of bounds: %f", v)
		}
	}
}

func TestSimulated_FearGreedBounds(t *testing.T) {
	s := NewSimulated()
	v, err := s.FearGreedIndex(context.Background())
	if err != nil {
		t.Fatalf("FearGreedIndex: %v", err)
	}
	if v < 5 || v > 95 {
		t.Errorf("fear/greed out of bounds: %f", v)
	}
}

func TestSimulated_OptionsSummaryDeterministicPerSymbol(t *testing.T) {
	s := NewSimulated()
	a, err := s.OptionsSummary(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("OptionsSummary: %v", err)
	}
	b, err := s.OptionsSummary(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("OptionsSummary: %v", err)
	}
	if a.PutCallVolumeRatio != b.PutCallVolumeRatio {
		t.Error("expected same-symbol reads within the same window to match")
	}
}

func TestSimulated_InsiderSummarySentiment(t *testing.T) {
	s := NewSimulated()
	summary, err := s.InsiderSummary(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("InsiderSummary: %v", err)
	}
	if summary.BuyCount < 0 || summary.SellCount < 0 {
		t.Error("counts should never be negative")
	}
}

func TestSimulated_NextEarningsDateIsFuture(t *testing.T) {
	s := NewSimulated()
	next, hasNext, last, hasLast, err := s.NextEarningsDate(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("NextEarningsDate: %v", err)
	}
	if !hasNext || !hasLast {
		t.Fatal("expected both a next and a last earnings date")
	}
	if !next.After(last) {
		t.Error("next earnings date should be after the last one")
	}
}

func TestSeedPrices(t *testing.T) {
	prices := SeedPrices([]string{"AAPL", "MSFT", "AAPL"})
	if len(prices) != 2 {
		t.Fatalf("expected 2 distinct symbols, got %d", len(prices))
	}
	for sym, price := range prices {
		if price < 20 || price > 500 {
			t.Errorf("%s seed price out of range: %f", sym, price)
		}
	}
}

func TestSeedPrices_Deterministic(t *testing.T) {
	a := SeedPrices([]string{"AAPL"})
	b := SeedPrices([]string{"AAPL"})
	if a["AAPL"] != b["AAPL"] {
		t.Error("seed price for a symbol should be stable across calls")
	}
}
