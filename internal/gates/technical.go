// Package gates evaluates a prospective BUY/SELL decision against a
// symbol's TechnicalAnalysis, accumulating a risk score and a set of
// reasons rather than a single pass/fail check.
package gates

import (
	"fmt"

	"github.com/koshedutech/equities-trader/internal/indicators"
)

// Verdict is the gate's final ruling on a decision.
type Verdict string

const (
	VerdictAllowed Verdict = "ALLOWED"
	VerdictWarning Verdict = "WARNING"
	VerdictBlocked Verdict = "BLOCKED"
)

// Result is what TechnicalGate returns for one evaluation.
type Result struct {
	Decision   Verdict
	CanProceed bool
	Reasons    []string
	Messages   []string
	RiskScore  int
}

func (r *Result) add(points int, reason, message string) {
	r.RiskScore += points
	r.Reasons = append(r.Reasons, reason)
	r.Messages = append(r.Messages, message)
}

func (r *Result) block(points int, reason, message string) {
	r.add(points, reason, message)
	r.Decision = VerdictBlocked
	r.CanProceed = false
}

// Evaluate runs the cascading technical-gate rules for decision ("BUY",
// "SELL", or "HOLD") against analysis. HOLD always passes with a zero
// risk score.
func Evaluate(decision string, analysis indicators.Analysis) Result {
	result := Result{Decision: VerdictAllowed, CanProceed: true}

	switch decision {
	case "BUY":
		evaluateBuy(&result, analysis)
	case "SELL":
		evaluateSell(&result, analysis)
	case "HOLD":
		return result
	default:
		return result
	}

	if result.Decision == VerdictBlocked {
		return result
	}

	if result.RiskScore > 30 {
		result.Decision = VerdictWarning
		result.CanProceed = true
	}

	return result
}

func evaluateBuy(r *Result, a indicators.Analysis) {
	if a.RSI > 75 {
		r.block(50, "RSI_OVERBOUGHT", fmt.Sprintf("RSI %.1f is deeply overbought", a.RSI))
	} else if a.RSI > 65 {
		r.add(25, "RSI_ELEVATED", fmt.Sprintf("RSI %.1f is elevated", a.RSI))
	}

	macdBearish := a.MACDLine < a.MACDSignalLine && a.MACDLine < 0
	if macdBearish && a.MACDLine < -0.5 {
		r.block(40, "MACD_BEARISH", "MACD deeply negative and below signal")
	} else if macdBearish {
		r.add(20, "MACD_BEARISH_SOFT", "MACD negative and below signal")
	}

	if a.MACDHistogram < -0.5 {
		r.add(15, "MACD_HISTOGRAM_NEGATIVE", "MACD histogram sharply negative")
	}

	if a.VolumeRatio < 0.5 {
		r.add(20, "VOLUME_VERY_LOW", fmt.Sprintf("volume ratio %.2f is very low", a.VolumeRatio))
	} else if a.VolumeRatio < 0.8 {
		r.add(10, "VOLUME_LOW", fmt.Sprintf("volume ratio %.2f is below average", a.VolumeRatio))
	}

	if a.Trend == indicators.TrendBearish || a.Trend == indicators.TrendStrongBearish {
		r.add(15, "TREND_BEARISH", fmt.Sprintf("trend is %s", a.Trend))
	}

	if a.RSI > 70 && a.MACDLine < 0 {
		r.RiskScore = 100
		r.Decision = VerdictBlocked
		r.CanProceed = false
		r.Reasons = append(r.Reasons, "RSI_MACD_COMBO")
		r.Messages = append(r.Messages, "overbought RSI combined with negative MACD")
	}
}

func evaluateSell(r *Result, a indicators.Analysis) {
	if a.RSI < 25 {
		r.block(50, "RSI_OVERSOLD", fmt.Sprintf("RSI %.1f is deeply oversold", a.RSI))
	} else if a.RSI < 35 {
		r.add(25, "RSI_DEPRESSED", fmt.Sprintf("RSI %.1f is depressed", a.RSI))
	}

	macdBullish := a.MACDLine > a.MACDSignalLine && a.MACDLine > 0
	if macdBullish && a.MACDLine > 0.5 {
		r.block(40, "MACD_BULLISH", "MACD strongly positive and above signal")
	} else if macdBullish {
		r.add(20, "MACD_BULLISH_SOFT", "MACD positive and above signal")
	}

	if a.MACDHistogram > 0.5 {
		r.add(15, "MACD_HISTOGRAM_POSITIVE", "MACD histogram sharply positive")
	}

	if a.VolumeRatio < 0.5 {
		r.add(20, "VOLUME_VERY_LOW", fmt.Sprintf("volume ratio %.2f is very low", a.VolumeRatio))
	} else if a.VolumeRatio < 0.8 {
		r.add(10, "VOLUME_LOW", fmt.Sprintf("volume ratio %.2f is below average", a.VolumeRatio))
	}

	if a.Trend == indicators.TrendBullish || a.Trend == indicators.TrendStrongBullish {
		r.add(15, "TREND_BULLISH", fmt.Sprintf("trend is %s", a.Trend))
	}

	if a.RSI < 30 && a.MACDLine > 0 {
		r.RiskScore = 100
		r.Decision = VerdictBlocked
		r.CanProceed = false
		r.Reasons = append(r.Reasons, "RSI_MACD_COMBO")
		r.Messages = append(r.Messages, "oversold RSI combined with positive MACD")
	}
}
