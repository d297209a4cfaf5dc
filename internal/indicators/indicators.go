// Package indicators computes technical analysis values (RSI, MACD,
// support/resistance, volume ratio, composite trend strength) from a
// symbol's OHLCV history.
package indicators

// Bar is one OHLCV candle, oldest-first ordering expected in any []Bar
// passed to this package.
type Bar struct {
	Open, High, Low, Close, Volume float64
}

// RSISignal buckets the RSI value.
type RSISignal string

const (
	RSIOversold            RSISignal = "OVERSOLD"
	RSIApproachingOversold RSISignal = "APPROACHING_OVERSOLD"
	RSINeutral             RSISignal = "NEUTRAL"
	RSIApproachingOverbought RSISignal = "APPROACHING_OVERBOUGHT"
	RSIOverbought          RSISignal = "OVERBOUGHT"
)

// VolumeSignal buckets the volume ratio.
type VolumeSignal string

const (
	VolumeVeryHigh VolumeSignal = "VERY_HIGH"
	VolumeHigh     VolumeSignal = "HIGH"
	VolumeNormal   VolumeSignal = "NORMAL"
	VolumeLow      VolumeSignal = "LOW"
	VolumeVeryLow  VolumeSignal = "VERY_LOW"
)

// Trend buckets the composite trend strength.
type Trend string

const (
	TrendStrongBullish Trend = "STRONG_BULLISH"
	TrendBullish       Trend = "BULLISH"
	TrendNeutral       Trend = "NEUTRAL"
	TrendBearish       Trend = "BEARISH"
	TrendStrongBearish Trend = "STRONG_BEARISH"
)

// MinimumBars is the minimum history length Analyze requires to produce
// a meaningful analysis.
const MinimumBars = 30

// Analysis is the full technical picture for one symbol at its latest bar.
type Analysis struct {
	RSI            float64
	RSISignal      RSISignal
	MACDLine       float64
	MACDSignalLine float64
	MACDHistogram  float64
	SupportLevel   float64
	ResistanceLevel float64
	VolumeRatio    float64
	AvgVolume20D   float64
	VolumeSignal   VolumeSignal
	Trend          Trend
	TrendStrength  float64 // 0-100
	BullishScore   float64 // == TrendStrength
}

// Analyze computes a full Analysis from bars, oldest-first. Callers must
// supply at least MinimumBars bars; fewer produces degraded (but not
// panicking) output via each sub-calculation's own minimum-data fallback.
func Analyze(bars []Bar) Analysis {
	closes := closesOf(bars)

	rsi := RSI(closes, 14)
	macdLine, macdSignal, macdHist := MACD(closes, 12, 26, 9)
	support, resistance := SupportResistance(bars, 20)
	volumeRatio, avgVolume := VolumeRatio(bars, 20)
	trend, strength := TrendAndStrength(closes, rsi, macdLine, macdSignal, volumeRatio)

	return Analysis{
		RSI:             rsi,
		RSISignal:       classifyRSI(rsi),
		MACDLine:        macdLine,
		MACDSignalLine:  macdSignal,
		MACDHistogram:   macdHist,
		SupportLevel:    support,
		ResistanceLevel: resistance,
		VolumeRatio:     volumeRatio,
		AvgVolume20D:    avgVolume,
		VolumeSignal:    classifyVolume(volumeRatio),
		Trend:           trend,
		TrendStrength:   strength,
		BullishScore:    strength,
	}
}

func closesOf(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// SMA is the simple moving average of the last period closes.
func SMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMA is the exponential moving average over the full closes slice,
// seeded by the SMA of the first period values.
func EMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}

	multiplier := 2.0 / float64(period+1)
	ema := SMA(closes[:period], period)
	for i := period; i < len(closes); i++ {
		ema = (closes[i] * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// emaSeries returns the EMA value at every index from period-1 onward,
// seeded by the SMA of the first period values. Used to build the MACD
// signal line, which needs the MACD line's own EMA rather than a single
// scalar.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	series := make([]float64, len(values))
	seed := SMA(values[:period], period)
	series[period-1] = seed

	ema := seed
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		series[i] = ema
	}
	return series[period-1:]
}

// RSI is Wilder's Relative Strength Index over the given period. Returns
// 50 (neutral) if there are fewer than period+1 closes.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line (fastEMA - slowEMA), its signal line (EMA of
// the MACD line over signalPeriod), and their histogram (line - signal).
// Requires a full series of MACD-line values to seed the signal EMA
// properly rather than approximating it from a single scalar.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) (line, signal, histogram float64) {
	if len(closes) < slowPeriod+signalPeriod {
		return 0, 0, 0
	}

	fastSeries := emaSeriesAligned(closes, fastPeriod, slowPeriod)
	slowSeries := emaSeries(closes, slowPeriod)

	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if len(signalSeries) == 0 {
		return macdSeries[len(macdSeries)-1], 0, 0
	}

	line = macdSeries[len(macdSeries)-1]
	signal = signalSeries[len(signalSeries)-1]
	histogram = line - signal
	return line, signal, histogram
}

// emaSeriesAligned computes the fast EMA series but truncates it to align
// index-for-index with the slow EMA series (which starts slowPeriod-1
// bars later), so the two can be subtracted directly.
func emaSeriesAligned(closes []float64, fastPeriod, slowPeriod int) []float64 {
	full := emaSeries(closes, fastPeriod)
	offset := slowPeriod - fastPeriod
	if offset < 0 || offset >= len(full) {
		return full
	}
	return full[offset:]
}

// SupportResistance finds the nearest swing low below, and swing high
// above, the current close within the last window bars. A swing low/high
// is a bar strictly lower/higher than both its immediate neighbors. Falls
// back to the window's min/max when no swing point exists on the
// relevant side.
func SupportResistance(bars []Bar, window int) (support, resistance float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	if window > len(bars) {
		window = len(bars)
	}

	start := len(bars) - window
	slice := bars[start:]
	current := bars[len(bars)-1].Close

	windowMin, windowMax := slice[0].Low, slice[0].High
	for _, b := range slice {
		if b.Low < windowMin {
			windowMin = b.Low
		}
		if b.High > windowMax {
			windowMax = b.High
		}
	}

	support = windowMin
	resistance = windowMax
	foundSupport, foundResistance := false, false

	for i := 1; i < len(slice)-1; i++ {
		isSwingLow := slice[i].Low < slice[i-1].Low && slice[i].Low < slice[i+1].Low
		isSwingHigh := slice[i].High > slice[i-1].High && slice[i].High > slice[i+1].High

		if isSwingLow && slice[i].Low < current {
			if !foundSupport || slice[i].Low > support {
				support = slice[i].Low
				foundSupport = true
			}
		}
		if isSwingHigh && slice[i].High > current {
			if !foundResistance || slice[i].High < resistance {
				resistance = slice[i].High
				foundResistance = true
			}
		}
	}

	return support, resistance
}

// VolumeRatio divides the last bar's volume by the mean of the prior
// window bars' volumes, also returning that mean.
func VolumeRatio(bars []Bar, window int) (ratio, avgVolume float64) {
	if len(bars) < window+1 {
		if len(bars) < 2 {
			return 1.0, 0
		}
		window = len(bars) - 1
	}

	start := len(bars) - 1 - window
	sum := 0.0
	for i := start; i < len(bars)-1; i++ {
		sum += bars[i].Volume
	}
	avgVolume = sum / float64(window)
	if avgVolume == 0 {
		return 1.0, 0
	}

	last := bars[len(bars)-1].Volume
	return last / avgVolume, avgVolume
}

func classifyRSI(rsi float64) RSISignal {
	switch {
	case rsi < 30:
		return RSIOversold
	case rsi < 40:
		return RSIApproachingOversold
	case rsi <= 60:
		return RSINeutral
	case rsi <= 70:
		return RSIApproachingOverbought
	default:
		return RSIOverbought
	}
}

func classifyVolume(ratio float64) VolumeSignal {
	switch {
	case ratio > 2.0:
		return VolumeVeryHigh
	case ratio > 1.5:
		return VolumeHigh
	case ratio >= 0.8:
		return VolumeNormal
	case ratio >= 0.5:
		return VolumeLow
	default:
		return VolumeVeryLow
	}
}

// TrendAndStrength computes the composite trend direction and its
// 0-100 strength: 30% price-trend score (SMA10 vs SMA20), 30% RSI score
// (U-shaped — oversold favors bullish), 40% MACD score (crossovers score
// extremes), the sum scaled by a volume multiplier of 0.8-1.2.
func TrendAndStrength(closes []float64, rsi, macdLine, macdSignal, volumeRatio float64) (Trend, float64) {
	priceScore := priceTrendScore(closes)
	rsiScore := rsiTrendScore(rsi)
	macdScore := macdTrendScore(macdLine, macdSignal)

	raw := priceScore*0.30 + rsiScore*0.30 + macdScore*0.40
	multiplier := volumeMultiplier(volumeRatio)
	strength := raw * multiplier

	if strength > 100 {
		strength = 100
	}
	if strength < 0 {
		strength = 0
	}

	return classifyTrend(strength), strength
}

// priceTrendScore compares SMA(10) to SMA(20): at parity scores 50,
// diverging by 2% or more pushes toward the 0/100 extremes.
func priceTrendScore(closes []float64) float64 {
	sma10 := SMA(closes, 10)
	sma20 := SMA(closes, 20)
	if sma20 == 0 {
		return 50
	}

	pctDiff := (sma10 - sma20) / sma20 * 100
	switch {
	case pctDiff >= 2:
		return 90
	case pctDiff > 0:
		return 50 + (pctDiff/2)*40
	case pctDiff <= -2:
		return 10
	default:
		return 50 + (pctDiff/2)*40
	}
}

// rsiTrendScore is U-shaped: an oversold RSI scores bullish (trade
// reversal upward is likely), an overbought RSI scores bearish.
func rsiTrendScore(rsi float64) float64 {
	switch {
	case rsi <= 30:
		return 80
	case rsi <= 40:
		return 65
	case rsi <= 60:
		return 50
	case rsi <= 70:
		return 35
	default:
		return 20
	}
}

// macdTrendScore scores a bullish crossover (line above signal) toward
// 100, a bearish crossover toward 0, magnitude widening the extreme.
func macdTrendScore(line, signal float64) float64 {
	diff := line - signal
	switch {
	case diff > 0.5:
		return 90
	case diff > 0:
		return 65
	case diff > -0.5:
		return 35
	default:
		return 10
	}
}

func volumeMultiplier(volumeRatio float64) float64 {
	switch {
	case volumeRatio > 2.0:
		return 1.2
	case volumeRatio > 1.2:
		return 1.1
	case volumeRatio < 0.5:
		return 0.8
	case volumeRatio < 0.8:
		return 0.9
	default:
		return 1.0
	}
}

func classifyTrend(strength float64) Trend {
	switch {
	case strength >= 75:
		return TrendStrongBullish
	case strength >= 60:
		return TrendBullish
	case strength <= 25:
		return TrendStrongBearish
	case strength <= 40:
		return TrendBearish
	default:
		return TrendNeutral
	}
}
