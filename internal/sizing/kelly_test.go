package sizing

import (
	"testing"

	"github.com/koshedutech/equities-trader/internal/database"
)

func TestRawKelly(t *testing.T) {
	cases := []struct {
		name    string
		winRate float64
		payoff  float64
		wantMin float64
		wantMax float64
	}{
		{"positive edge", 0.6, 2.0, 0.39, 0.41},
		{"zero payoff clamps to zero", 0.6, 0, 0, 0},
		{"negative payoff clamps to zero", 0.6, -1, 0, 0},
		{"poor edge clamps to zero", 0.2, 0.5, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rawKelly(tc.winRate, tc.payoff)
			if got < tc.wantMin || got > tc.wantMax {
				t.Errorf("rawKelly(%v, %v) = %v, want in [%v, %v]", tc.winRate, tc.payoff, got, tc.wantMin, tc.wantMax)
			}
		})
	}
}

func TestVixFactor(t *testing.T) {
	if got := vixFactor(10); got != 1.5 {
		t.Errorf("vixFactor(10) = %v, want 1.5", got)
	}
	if got := vixFactor(35); got != 0.5 {
		t.Errorf("vixFactor(35) = %v, want 0.5", got)
	}
	if got := vixFactor(22.5); got < 0.95 || got > 1.05 {
		t.Errorf("vixFactor(22.5) = %v, want ~1.0", got)
	}
}

func TestDynamicMultiplier_StreakAdjustments(t *testing.T) {
	base := dynamicMultiplier(22.5, 0, 0)
	winStreak := dynamicMultiplier(22.5, 5, 0)
	lossStreak := dynamicMultiplier(22.5, 0, 3)

	if winStreak <= base {
		t.Errorf("win streak multiplier %v should exceed base %v", winStreak, base)
	}
	if lossStreak >= base {
		t.Errorf("loss streak multiplier %v should be below base %v", lossStreak, base)
	}
}

func TestConfidenceFactorFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{40, 0.3},
		{55, 0.5},
		{65, 0.7},
		{75, 0.85},
		{85, 1.0},
		{95, 1.1},
	}
	for _, tc := range cases {
		if got := confidenceFactorFor(tc.confidence); got != tc.want {
			t.Errorf("confidenceFactorFor(%v) = %v, want %v", tc.confidence, got, tc.want)
		}
	}
}

func TestRiskFactorFor_ClampsToBounds(t *testing.T) {
	// Worst case: extreme VIX + high risk + bearish smart money.
	got := riskFactorFor(40, RiskHigh, SmartMoneyBearish)
	if got != 0.4 {
		t.Errorf("riskFactorFor worst case = %v, want clamped 0.4", got)
	}

	// Best case: low VIX + low risk + bullish smart money.
	got = riskFactorFor(10, RiskLow, SmartMoneyBullish)
	if got > 1.3 {
		t.Errorf("riskFactorFor best case = %v, want clamped to <= 1.3", got)
	}
}

func TestPositionSize_NoHistoryUsesDefaults(t *testing.T) {
	sizing := PositionSize(nil, Input{
		Capital:    100000,
		Confidence: 75,
		VIX:        20,
		RiskLevel:  RiskMedium,
	})

	if sizing.PositionPct < minPositionPct || sizing.PositionPct > maxPositionPct {
		t.Errorf("PositionPct = %v, want within [%v, %v]", sizing.PositionPct, minPositionPct, maxPositionPct)
	}
	if sizing.RecommendedAmount <= 0 {
		t.Errorf("RecommendedAmount = %v, want positive", sizing.RecommendedAmount)
	}
	if sizing.MaxLoss != sizing.RecommendedAmount*maxLossFraction {
		t.Errorf("MaxLoss = %v, want %v", sizing.MaxLoss, sizing.RecommendedAmount*maxLossFraction)
	}
}

func TestPositionSize_NegativeEdgeFloorsAtMinimum(t *testing.T) {
	stats := &database.AgentStatisticsRow{
		TotalTrades:  50,
		WinRate:      0.2,
		WinLossRatio: 0.5,
	}
	sizing := PositionSize(stats, Input{Capital: 100000, Confidence: 80, VIX: 20, RiskLevel: RiskMedium})

	if sizing.KellyFraction != 0 {
		t.Errorf("KellyFraction = %v, want 0 for negative edge", sizing.KellyFraction)
	}
	if sizing.PositionPct != minPositionPct {
		t.Errorf("PositionPct = %v, want floor %v", sizing.PositionPct, minPositionPct)
	}
}

func TestPositionSize_StrongEdgeCapsAtMaximum(t *testing.T) {
	stats := &database.AgentStatisticsRow{
		TotalTrades:  50,
		WinRate:      0.8,
		WinLossRatio: 3.0,
	}
	sizing := PositionSize(stats, Input{
		Capital:         100000,
		Confidence:      95,
		VIX:             10,
		RiskLevel:       RiskLow,
		SmartMoney:      SmartMoneyBullish,
		ConsecutiveWins: 6,
	})

	if sizing.PositionPct != maxPositionPct {
		t.Errorf("PositionPct = %v, want ceiling %v", sizing.PositionPct, maxPositionPct)
	}
}
