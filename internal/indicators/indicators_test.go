package indicators

import "testing"

func makeBars(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1_000_000}
	}
	return bars
}

func TestRSI_InsufficientData(t *testing.T) {
	closes := []float64{100, 101, 102}
	if got := RSI(closes, 14); got != 50.0 {
		t.Errorf("RSI with insufficient data = %v, want 50", got)
	}
}

func TestRSI_AllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if got := RSI(closes, 14); got != 100.0 {
		t.Errorf("RSI with all gains = %v, want 100", got)
	}
}

func TestRSI_MixedMovement(t *testing.T) {
	closes := []float64{
		44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28,
	}
	rsi := RSI(closes, 14)
	if rsi <= 0 || rsi >= 100 {
		t.Errorf("RSI = %v, want a value strictly between 0 and 100", rsi)
	}
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); got != 3 {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := SMA(closes, 10); got != 0 {
		t.Errorf("SMA with insufficient data = %v, want 0", got)
	}
}

func TestMACD_InsufficientData(t *testing.T) {
	closes := []float64{1, 2, 3}
	line, signal, hist := MACD(closes, 12, 26, 9)
	if line != 0 || signal != 0 || hist != 0 {
		t.Errorf("MACD with insufficient data = (%v,%v,%v), want all zero", line, signal, hist)
	}
}

func TestMACD_Uptrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	line, signal, hist := MACD(closes, 12, 26, 9)
	if line <= 0 {
		t.Errorf("MACD line in a steady uptrend = %v, want > 0", line)
	}
	if hist != line-signal {
		t.Errorf("histogram = %v, want line-signal = %v", hist, line-signal)
	}
}

func TestSupportResistance_FallsBackToMinMax(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10}
	bars := makeBars(closes)
	support, resistance := SupportResistance(bars, 5)
	if support != 9 {
		t.Errorf("support = %v, want 9 (window low)", support)
	}
	if resistance != 11 {
		t.Errorf("resistance = %v, want 11 (window high)", resistance)
	}
}

func TestVolumeRatio(t *testing.T) {
	bars := make([]Bar, 25)
	for i := range bars {
		bars[i] = Bar{Close: 100, Volume: 1000}
	}
	bars[len(bars)-1].Volume = 2000
	ratio, avg := VolumeRatio(bars, 20)
	if avg != 1000 {
		t.Errorf("avg volume = %v, want 1000", avg)
	}
	if ratio != 2.0 {
		t.Errorf("volume ratio = %v, want 2.0", ratio)
	}
}

func TestClassifyRSI(t *testing.T) {
	cases := []struct {
		rsi  float64
		want RSISignal
	}{
		{20, RSIOversold},
		{35, RSIApproachingOversold},
		{50, RSINeutral},
		{65, RSIApproachingOverbought},
		{80, RSIOverbought},
	}
	for _, tc := range cases {
		if got := classifyRSI(tc.rsi); got != tc.want {
			t.Errorf("classifyRSI(%v) = %v, want %v", tc.rsi, got, tc.want)
		}
	}
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		strength float64
		want     Trend
	}{
		{80, TrendStrongBullish},
		{65, TrendBullish},
		{50, TrendNeutral},
		{30, TrendBearish},
		{10, TrendStrongBearish},
	}
	for _, tc := range cases {
		if got := classifyTrend(tc.strength); got != tc.want {
			t.Errorf("classifyTrend(%v) = %v, want %v", tc.strength, got, tc.want)
		}
	}
}

func TestAnalyze_ProducesAllFields(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.3
	}
	bars := makeBars(closes)

	analysis := Analyze(bars)
	if analysis.RSI <= 0 || analysis.RSI > 100 {
		t.Errorf("RSI out of range: %v", analysis.RSI)
	}
	if analysis.SupportLevel >= analysis.ResistanceLevel {
		t.Errorf("support (%v) should be below resistance (%v)", analysis.SupportLevel, analysis.ResistanceLevel)
	}
	if analysis.TrendStrength != analysis.BullishScore {
		t.Errorf("BullishScore should equal TrendStrength")
	}
}
