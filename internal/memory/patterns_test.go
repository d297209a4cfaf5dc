package memory

import "testing"

func TestRsiRangeOf(t *testing.T) {
	cases := []struct {
		rsi  float64
		want string
	}{
		{10, "0-30"}, {35, "30-40"}, {50, "40-60"}, {65, "60-70"}, {80, "70+"},
	}
	for _, tc := range cases {
		if got := rsiRangeOf(tc.rsi); got != tc.want {
			t.Errorf("rsiRangeOf(%v) = %s, want %s", tc.rsi, got, tc.want)
		}
	}
}

func TestVolumeBucketOf(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{2.0, "high"}, {0.3, "low"}, {1.0, "normal"},
	}
	for _, tc := range cases {
		if got := volumeBucketOf(tc.ratio); got != tc.want {
			t.Errorf("volumeBucketOf(%v) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestBandOf(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{80, "FAVORABLE"}, {70, "FAVORABLE"}, {60, "NEUTRAL"}, {49, "UNFAVORABLE"},
	}
	for _, tc := range cases {
		if got := bandOf(tc.score); got != tc.want {
			t.Errorf("bandOf(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func newTestIndex() *PatternIndex {
	return &PatternIndex{
		byHour:         map[int]int{10: 5, 11: 1},
		bySector:       map[string]int{"Technology": 8, "Energy": 2},
		byRSIRange:     map[string]int{"0-30": 4, "30-40": 1},
		byVolumeBucket: map[string]int{"high": 3},
	}
}

func TestGetPatternRecommendation_BestHourMatch(t *testing.T) {
	idx := newTestIndex()
	hour := 10
	rec := idx.GetPatternRecommendation("", nil, &hour, nil)
	if rec.Score != 65 {
		t.Errorf("score with best-hour match = %d, want 65 (50+15)", rec.Score)
	}
}

func TestGetPatternRecommendation_PerformingSector(t *testing.T) {
	idx := newTestIndex()
	rec := idx.GetPatternRecommendation("Technology", nil, nil, nil)
	if rec.Score != 60 {
		t.Errorf("score with performing sector = %d, want 60 (50+10)", rec.Score)
	}
}

func TestGetPatternRecommendation_FavorableRSI(t *testing.T) {
	idx := newTestIndex()
	rsi := 20.0 // bucket 0-30 has count 4, above average (2.5) -> favorable
	rec := idx.GetPatternRecommendation("", &rsi, nil, nil)
	if rec.Score != 65 {
		t.Errorf("score with favorable RSI = %d, want 65 (50+15)", rec.Score)
	}
}

func TestGetPatternRecommendation_UnfavorableRSI(t *testing.T) {
	idx := newTestIndex()
	rsi := 65.0 // bucket 60-70 has count 0 -> unfavorable
	rec := idx.GetPatternRecommendation("", &rsi, nil, nil)
	if rec.Score != 35 {
		t.Errorf("score with unfavorable RSI = %d, want 35 (50-15)", rec.Score)
	}
}

func TestGetPatternRecommendation_VolumeAdjustments(t *testing.T) {
	idx := newTestIndex()

	high := 2.0
	rec := idx.GetPatternRecommendation("", nil, nil, &high)
	if rec.Score != 60 {
		t.Errorf("score with high volume = %d, want 60 (50+10)", rec.Score)
	}

	low := 0.3
	rec = idx.GetPatternRecommendation("", nil, nil, &low)
	if rec.Score != 40 {
		t.Errorf("score with low volume = %d, want 40 (50-10)", rec.Score)
	}
}

func TestGetPatternRecommendation_EmptyIndexStaysNeutral(t *testing.T) {
	idx := &PatternIndex{}
	rec := idx.GetPatternRecommendation("Technology", nil, nil, nil)
	if rec.Score != 50 || rec.Band != "NEUTRAL" {
		t.Errorf("empty index recommendation = %+v, want 50/NEUTRAL", rec)
	}
}
