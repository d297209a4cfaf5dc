// Package signal blends an LLM's raw decision confidence with the
// smart-money aggregate and learning-memory history into one final
// confidence, strength band, and sizing multiplier before a decision
// is allowed to reach the broker.
package signal

import (
	"fmt"
	"math"

	"github.com/koshedutech/equities-trader/internal/smartmoney"
)

const (
	aiWeight         = 0.50
	smartMoneyWeight = 0.30
	memoryWeight     = 0.20
)

// Strength is the banded classification of a blended signal.
type Strength string

const (
	StrengthStrongBullish Strength = "STRONG_BULLISH"
	StrengthStrongBearish Strength = "STRONG_BEARISH"
	StrengthBullish       Strength = "BULLISH"
	StrengthBearish       Strength = "BEARISH"
	StrengthWeakBullish   Strength = "WEAK_BULLISH"
	StrengthWeakBearish   Strength = "WEAK_BEARISH"
	StrengthNeutral       Strength = "NEUTRAL"
	StrengthBlocked       Strength = "BLOCKED"
)

// MemoryAggregates is the subset of learning-memory history the
// combiner needs to compute the memory sub-score, pre-fetched by the
// caller (e.g. from store.GetPreDecisionContext / GetSymbolSpecificContext).
type MemoryAggregates struct {
	SymbolWinRate           float64
	HasSymbolHistory        bool
	ConfidenceBucketWinRate float64
	HasConfidenceBucket     bool
	RecentNegativeLessons   int
}

// Input bundles everything the combiner needs for one decision.
type Input struct {
	Decision   string  // BUY | SELL | HOLD
	Confidence float64 // 0-100, from the LLM
	VIX        float64
	FearGreed  float64
	SmartMoney *smartmoney.Snapshot
	Memory     *MemoryAggregates
}

// Result is the combiner's final verdict.
type Result struct {
	FinalScore       float64
	FinalConfidence  float64
	SignalStrength   Strength
	SizingMultiplier float64
	MarketRegimeOK   bool
	ShouldProceed    bool
	Reasoning        string
}

// Combine blends the three signal sources per in and returns the final
// verdict used to gate and size the decision.
func Combine(in Input) Result {
	regimeOK, regimeReason := marketRegimeOK(in.Decision, in.VIX, in.FearGreed)

	base := in.Confidence / 100
	sm := smartMoneySubScore(in)
	mem := memorySubScore(in.Memory)

	finalScore := aiWeight*base + smartMoneyWeight*(sm+1)/2 + memoryWeight*(mem+1)/2
	finalConfidence := math.Round(finalScore * 100)

	var strength Strength
	if !regimeOK {
		strength = StrengthBlocked
	} else {
		strength = strengthBand(in.Decision, finalConfidence)
	}

	sizingMultiplier := sizingMultiplierFor(finalConfidence, sm, mem)

	shouldProceed := regimeOK && finalConfidence >= 50 && strength != StrengthBlocked && strength != StrengthNeutral

	reasoning := fmt.Sprintf("ai=%.2f sm=%.2f mem=%.2f -> final_confidence=%.0f strength=%s", base, sm, mem, finalConfidence, strength)
	if !regimeOK {
		reasoning = regimeReason + "; " + reasoning
	}

	return Result{
		FinalScore:       finalScore,
		FinalConfidence:  finalConfidence,
		SignalStrength:   strength,
		SizingMultiplier: sizingMultiplier,
		MarketRegimeOK:   regimeOK,
		ShouldProceed:    shouldProceed,
		Reasoning:        reasoning,
	}
}

// marketRegimeOK applies the guard that rejects a decision before any
// blending happens: BUYs are blocked outright in an extreme-VIX
// regime, any trade is blocked when fear is deep and VIX is elevated,
// and extreme greed only warns (doesn't block).
func marketRegimeOK(decision string, vix, fearGreed float64) (bool, string) {
	if decision == "BUY" && vix > 40 {
		return false, fmt.Sprintf("BUY blocked: VIX %.1f > 40", vix)
	}
	if fearGreed < 20 && vix > 30 {
		return false, fmt.Sprintf("blocked: extreme fear (%.0f) with elevated VIX (%.1f)", fearGreed, vix)
	}
	return true, ""
}

// smartMoneySubScore sums the contributing axes of the aggregated
// smart-money snapshot into [-1, +1], flipping sign for a SELL
// decision since a bullish snapshot favors buying, not selling.
func smartMoneySubScore(in Input) float64 {
	if in.SmartMoney == nil {
		return 0
	}
	snap := in.SmartMoney

	score := 0.0

	switch {
	case in.VIX < 15:
		score += 0.2
	case in.VIX > 30:
		score -= 0.2
	}

	if in.FearGreed > 80 {
		// Extreme greed only warns at the regime-guard level; here it
		// still tilts the score bearish (euphoria precedes pullbacks).
		score -= 0.1
	} else if in.FearGreed < 20 {
		score -= 0.2
	}

	switch {
	case snap.Options.PutCallVolumeRatio > 1.3:
		score -= 0.2
	case snap.Options.PutCallVolumeRatio < 0.7:
		score += 0.2
	}

	switch snap.DarkPool.Level {
	case "HIGH":
		score += 0.2
	case "LOW":
		score -= 0.2
	}

	switch snap.Insider.NetSentiment {
	case smartmoney.SentimentStrongBullish, smartmoney.SentimentBullish:
		score += 0.2
	case smartmoney.SentimentStrongBearish, smartmoney.SentimentBearish:
		score -= 0.2
	}

	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	if in.Decision == "SELL" {
		score = -score
	}
	return score
}

// memorySubScore folds symbol win rate, confidence-bucket win rate,
// and recent negative lessons into [-1, +1].
func memorySubScore(mem *MemoryAggregates) float64 {
	if mem == nil {
		return 0
	}

	score := 0.0

	if mem.HasSymbolHistory {
		switch {
		case mem.SymbolWinRate > 0.7:
			score += 0.3
		case mem.SymbolWinRate < 0.4:
			score -= 0.3
		}
	}

	if mem.HasConfidenceBucket {
		switch {
		case mem.ConfidenceBucketWinRate > 0.65:
			score += 0.2
		case mem.ConfidenceBucketWinRate < 0.45:
			score -= 0.2
		}
	}

	if mem.RecentNegativeLessons >= 2 {
		score -= 0.2
	}

	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// strengthBand classifies a final confidence into a directional band
// keyed by the decision. HOLD decisions are never strengthened beyond
// NEUTRAL since there's no directional conviction to amplify.
func strengthBand(decision string, confidence float64) Strength {
	bullish := decision == "BUY"
	bearish := decision == "SELL"

	switch {
	case confidence >= 85 && bullish:
		return StrengthStrongBullish
	case confidence >= 85 && bearish:
		return StrengthStrongBearish
	case confidence >= 65 && bullish:
		return StrengthBullish
	case confidence >= 65 && bearish:
		return StrengthBearish
	case confidence >= 50 && bullish:
		return StrengthWeakBullish
	case confidence >= 50 && bearish:
		return StrengthWeakBearish
	default:
		return StrengthNeutral
	}
}

// sizingMultiplierFor starts at 1.0 and layers confidence-band, smart-
// money-magnitude, and memory-magnitude adjustments, clamped to
// [0.5, 1.5].
func sizingMultiplierFor(finalConfidence, sm, mem float64) float64 {
	mult := 1.0

	switch {
	case finalConfidence >= 90:
		mult *= 1.3
	case finalConfidence >= 80:
		mult *= 1.1
	case finalConfidence < 60:
		mult *= 0.7
	}

	switch {
	case math.Abs(sm) > 0.5 && sm > 0:
		mult *= 1.2
	case math.Abs(sm) > 0.5 && sm < 0:
		mult *= 0.6
	}

	switch {
	case math.Abs(mem) > 0.5 && mem > 0:
		mult *= 1.1
	case math.Abs(mem) > 0.5 && mem < 0:
		mult *= 0.8
	}

	if mult < 0.5 {
		mult = 0.5
	}
	if mult > 1.5 {
		mult = 1.5
	}
	return mult
}
