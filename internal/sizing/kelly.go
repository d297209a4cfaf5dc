// Package sizing turns an agent's historical win rate and payoff ratio
// into a concrete dollar position size, scaled down by volatility,
// streak, confidence, and risk-level factors on top of the raw Kelly
// fraction.
package sizing

import (
	"fmt"

	"github.com/koshedutech/equities-trader/internal/database"
)

const (
	defaultWinRate      = 0.50
	defaultWinLossRatio = 1.5

	halfKelly = 0.5

	minPositionPct = 0.01
	maxPositionPct = 0.10

	maxLossFraction = 0.05
)

// RiskLevel mirrors the qualitative risk band attached to a decision by
// the gate stack, used to nudge the risk factor up or down.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// SmartMoneySign is the direction of the aggregated smart-money signal,
// used as a final nudge on the risk factor.
type SmartMoneySign int

const (
	SmartMoneyNeutral SmartMoneySign = iota
	SmartMoneyBullish
	SmartMoneyBearish
)

// Input bundles everything PositionSize needs beyond the agent's
// persisted win/loss statistics.
type Input struct {
	Capital           float64
	Confidence        float64 // 0-100
	VIX               float64
	RiskLevel         RiskLevel
	SmartMoney        SmartMoneySign
	ConsecutiveWins   int
	ConsecutiveLosses int
}

// PositionSizing is the sizer's full recommendation plus the
// intermediate factors that produced it, so callers can log or surface
// the reasoning alongside the number.
type PositionSizing struct {
	RecommendedAmount float64
	PositionPct       float64
	KellyFraction     float64
	AdjustedKelly     float64
	ConfidenceFactor  float64
	RiskFactor        float64
	MaxLoss           float64
	Reasoning         string
}

// PositionSize computes a dollar position size for an agent from its
// persisted statistics (falling back to conservative defaults when the
// agent has no trade history yet) and the current market/decision
// context in in_.
func PositionSize(stats *database.AgentStatisticsRow, in Input) PositionSizing {
	winRate := defaultWinRate
	winLossRatio := defaultWinLossRatio
	if stats != nil && stats.TotalTrades > 0 {
		if stats.WinRate > 0 {
			winRate = stats.WinRate
		}
		if stats.WinLossRatio > 0 {
			winLossRatio = stats.WinLossRatio
		}
	}

	raw := rawKelly(winRate, winLossRatio)

	dynamic := dynamicMultiplier(in.VIX, in.ConsecutiveWins, in.ConsecutiveLosses)
	confidenceFactor := confidenceFactorFor(in.Confidence)
	riskFactor := riskFactorFor(in.VIX, in.RiskLevel, in.SmartMoney)

	adjusted := raw * dynamic
	final := adjusted * confidenceFactor * riskFactor

	positionPct := final
	switch {
	case raw <= 0:
		positionPct = minPositionPct
	case positionPct < minPositionPct:
		positionPct = minPositionPct
	case positionPct > maxPositionPct:
		positionPct = maxPositionPct
	}

	recommendedAmount := in.Capital * positionPct
	maxLoss := recommendedAmount * maxLossFraction

	return PositionSizing{
		RecommendedAmount: recommendedAmount,
		PositionPct:       positionPct,
		KellyFraction:     raw,
		AdjustedKelly:     adjusted,
		ConfidenceFactor:  confidenceFactor,
		RiskFactor:        riskFactor,
		MaxLoss:           maxLoss,
		Reasoning: fmt.Sprintf(
			"kelly=%.4f dynamic=%.2f confidence=%.2f risk=%.2f -> position_pct=%.4f (win_rate=%.2f, payoff=%.2f)",
			raw, dynamic, confidenceFactor, riskFactor, positionPct, winRate, winLossRatio,
		),
	}
}

// rawKelly computes f* = p - (1-p)/b, the fraction of capital the Kelly
// criterion says to risk given win probability p and payoff ratio b.
// Returns 0 when the payoff ratio is non-positive or the edge is
// negative.
func rawKelly(winRate, payoffRatio float64) float64 {
	if payoffRatio <= 0 {
		return 0
	}
	f := winRate - (1-winRate)/payoffRatio
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// dynamicMultiplier scales the raw Kelly fraction down to half-Kelly by
// default, then further by a VIX factor (higher volatility shrinks
// size) and a win/loss streak factor (a hot streak opens up slightly,
// a cold one pulls back hard). The two streak adjustments are mutually
// exclusive; a simultaneous 5-win and 3-loss streak can't happen.
func dynamicMultiplier(vix float64, consecutiveWins, consecutiveLosses int) float64 {
	mult := halfKelly * vixFactor(vix)

	switch {
	case consecutiveWins >= 5:
		mult *= 1.2
	case consecutiveLosses >= 3:
		mult *= 0.6
	}

	return mult
}

// vixFactor linearly interpolates between 1.5x at VIX<=15 (calm
// markets, size up) and 0.5x at VIX>=30 (volatile markets, size down),
// passing through 1.0 at VIX 22.5.
func vixFactor(vix float64) float64 {
	switch {
	case vix <= 15:
		return 1.5
	case vix >= 30:
		return 0.5
	default:
		// Linear interpolation across [15, 30] between 1.5 and 1.0 up to
		// the midpoint, then 1.0 down to 0.5 -- approximated here as a
		// single linear ramp from 1.5 to 0.5 across the whole band, which
		// passes through 1.0 at the midpoint (22.5).
		return 1.5 - (vix-15)/15*1.0
	}
}

// confidenceFactorFor is a step function: low-confidence decisions get
// sized down sharply, high-confidence ones get a slight boost.
func confidenceFactorFor(confidence float64) float64 {
	switch {
	case confidence < 50:
		return 0.3
	case confidence < 60:
		return 0.5
	case confidence < 70:
		return 0.7
	case confidence < 80:
		return 0.85
	case confidence < 90:
		return 1.0
	default:
		return 1.1
	}
}

// riskFactorFor starts at 1.0 and applies VIX, qualitative risk-level,
// and smart-money adjustments, clamped to [0.4, 1.3] so no combination
// of adjustments can push sizing outside a sane band.
func riskFactorFor(vix float64, level RiskLevel, smartMoney SmartMoneySign) float64 {
	factor := 1.0

	switch {
	case vix > 35:
		factor *= 0.5
	case vix > 25:
		factor *= 0.8
	case vix < 15:
		factor *= 1.1
	}

	switch level {
	case RiskLow:
		factor *= 1.1
	case RiskHigh:
		factor *= 0.8
	}

	switch smartMoney {
	case SmartMoneyBullish:
		factor *= 1.1
	case SmartMoneyBearish:
		factor *= 0.9
	}

	if factor < 0.4 {
		factor = 0.4
	}
	if factor > 1.3 {
		factor = 1.3
	}
	return factor
}
