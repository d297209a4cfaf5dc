package signal

import (
	"testing"

	"github.com/koshedutech/equities-trader/internal/smartmoney"
)

func bullishSnapshot() *smartmoney.Snapshot {
	return &smartmoney.Snapshot{
		Options:  smartmoney.OptionsSummary{PutCallVolumeRatio: 0.5},
		DarkPool: smartmoney.DarkPoolEstimate{Level: "HIGH"},
		Insider:  smartmoney.InsiderSummary{NetSentiment: smartmoney.SentimentBullish},
	}
}

func bearishSnapshot() *smartmoney.Snapshot {
	return &smartmoney.Snapshot{
		Options:  smartmoney.OptionsSummary{PutCallVolumeRatio: 1.5},
		DarkPool: smartmoney.DarkPoolEstimate{Level: "LOW"},
		Insider:  smartmoney.InsiderSummary{NetSentiment: smartmoney.SentimentBearish},
	}
}

func TestCombine_MarketRegimeGuard_BlocksHighVIXBuy(t *testing.T) {
	result := Combine(Input{Decision: "BUY", Confidence: 90, VIX: 45, FearGreed: 50})
	if result.MarketRegimeOK {
		t.Error("expected market regime guard to trip for VIX>40 BUY")
	}
	if result.SignalStrength != StrengthBlocked {
		t.Errorf("SignalStrength = %s, want BLOCKED", result.SignalStrength)
	}
	if result.ShouldProceed {
		t.Error("ShouldProceed should be false when regime guard trips")
	}
}

func TestCombine_MarketRegimeGuard_BlocksExtremeFearAndVIX(t *testing.T) {
	result := Combine(Input{Decision: "SELL", Confidence: 90, VIX: 35, FearGreed: 10})
	if result.MarketRegimeOK {
		t.Error("expected market regime guard to trip for fear<20 and VIX>30")
	}
}

func TestCombine_ExtremeGreedOnlyWarns(t *testing.T) {
	result := Combine(Input{Decision: "BUY", Confidence: 80, VIX: 20, FearGreed: 85})
	if !result.MarketRegimeOK {
		t.Error("extreme greed alone should not trip the regime guard")
	}
}

func TestCombine_BullishSignalsRaiseConfidence(t *testing.T) {
	withoutBullish := Combine(Input{Decision: "BUY", Confidence: 70, VIX: 20, FearGreed: 50})
	withBullish := Combine(Input{
		Decision:   "BUY",
		Confidence: 70,
		VIX:        20,
		FearGreed:  50,
		SmartMoney: bullishSnapshot(),
		Memory: &MemoryAggregates{
			SymbolWinRate:    0.8,
			HasSymbolHistory: true,
		},
	})

	if withBullish.FinalConfidence <= withoutBullish.FinalConfidence {
		t.Errorf("bullish smart-money/memory should raise confidence: %v vs %v", withBullish.FinalConfidence, withoutBullish.FinalConfidence)
	}
}

func TestCombine_BearishSmartMoneyLowersConfidenceForBuy(t *testing.T) {
	withoutBearish := Combine(Input{Decision: "BUY", Confidence: 70, VIX: 20, FearGreed: 50})
	withBearish := Combine(Input{
		Decision:   "BUY",
		Confidence: 70,
		VIX:        20,
		FearGreed:  50,
		SmartMoney: bearishSnapshot(),
	})

	if withBearish.FinalConfidence >= withoutBearish.FinalConfidence {
		t.Errorf("bearish smart-money should lower confidence for a BUY: %v vs %v", withBearish.FinalConfidence, withoutBearish.FinalConfidence)
	}
}

func TestCombine_SmartMoneySignFlipsForSell(t *testing.T) {
	buyResult := Combine(Input{Decision: "BUY", Confidence: 70, VIX: 20, FearGreed: 50, SmartMoney: bullishSnapshot()})
	sellResult := Combine(Input{Decision: "SELL", Confidence: 70, VIX: 20, FearGreed: 50, SmartMoney: bullishSnapshot()})

	if sellResult.FinalConfidence >= buyResult.FinalConfidence {
		t.Errorf("a bullish snapshot should favor BUY over SELL: sell=%v buy=%v", sellResult.FinalConfidence, buyResult.FinalConfidence)
	}
}

func TestCombine_MemorySubScore_NegativeLessonsPenalize(t *testing.T) {
	clean := Combine(Input{Decision: "BUY", Confidence: 70, VIX: 20, FearGreed: 50, Memory: &MemoryAggregates{}})
	withLessons := Combine(Input{Decision: "BUY", Confidence: 70, VIX: 20, FearGreed: 50, Memory: &MemoryAggregates{RecentNegativeLessons: 3}})

	if withLessons.FinalConfidence >= clean.FinalConfidence {
		t.Errorf("recent negative lessons should lower confidence: %v vs %v", withLessons.FinalConfidence, clean.FinalConfidence)
	}
}

func TestStrengthBand(t *testing.T) {
	cases := []struct {
		decision   string
		confidence float64
		want       Strength
	}{
		{"BUY", 90, StrengthStrongBullish},
		{"SELL", 90, StrengthStrongBearish},
		{"BUY", 70, StrengthBullish},
		{"SELL", 70, StrengthBearish},
		{"BUY", 55, StrengthWeakBullish},
		{"BUY", 40, StrengthNeutral},
	}
	for _, tc := range cases {
		if got := strengthBand(tc.decision, tc.confidence); got != tc.want {
			t.Errorf("strengthBand(%s, %v) = %s, want %s", tc.decision, tc.confidence, got, tc.want)
		}
	}
}

func TestSizingMultiplierFor_ClampsToBounds(t *testing.T) {
	if got := sizingMultiplierFor(95, 0.9, 0.9); got != 1.5 {
		t.Errorf("best case multiplier = %v, want clamped 1.5", got)
	}
	if got := sizingMultiplierFor(40, -0.9, -0.9); got != 0.5 {
		t.Errorf("worst case multiplier = %v, want clamped 0.5", got)
	}
}

func TestCombine_ShouldProceedRequiresNonNeutralStrength(t *testing.T) {
	result := Combine(Input{Decision: "BUY", Confidence: 45, VIX: 20, FearGreed: 50})
	if result.ShouldProceed {
		t.Error("a neutral-strength decision should not proceed")
	}
}
