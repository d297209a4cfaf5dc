package smartmoney

import (
	"context"
	"errors"
	"testing"

	"github.com/koshedutech/equities-trader/internal/cache"
)

type fakeSources struct {
	vix          float64
	options      OptionsSummary
	fiveDayRatio float64
	insider      InsiderSummary
	fearGreed    float64
	optionsCalls int
}

func (f *fakeSources) VIX(ctx context.Context) (float64, error) { return f.vix, nil }
func (f *fakeSources) OptionsSummary(ctx context.Context, symbol string) (OptionsSummary, error) {
	f.optionsCalls++
	return f.options, nil
}
func (f *fakeSources) FiveDayVolumeRatio(ctx context.Context, symbol string) (float64, error) {
	return f.fiveDayRatio, nil
}
func (f *fakeSources) InsiderSummary(ctx context.Context, symbol string) (InsiderSummary, error) {
	return f.insider, nil
}
func (f *fakeSources) FearGreedIndex(ctx context.Context) (float64, error) { return f.fearGreed, nil }

func newAggregator(f *fakeSources) *Aggregator {
	sources := Sources{VIX: f, Options: f, FiveDayVolume: f, Insider: f, FearGreed: f}
	return NewAggregator(sources, cache.NewMemoryCache())
}

func TestSnapshot_StrongBullish(t *testing.T) {
	f := &fakeSources{
		vix:          15,
		options:      OptionsSummary{Sentiment: SentimentBullish},
		fiveDayRatio: 0.5, // HIGH dark pool, +1
		insider:      InsiderSummary{NetSentiment: SentimentBullish},
		fearGreed:    30, // fear, +1
	}
	agg := newAggregator(f)

	snap, err := agg.Snapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Snapshot error: %v", err)
	}
	// options +2, dark pool +1, insider +2, fear/greed +1 = 6
	if snap.Score != 6 {
		t.Errorf("score = %d, want 6", snap.Score)
	}
	if snap.Sentiment != SentimentStrongBullish || snap.ConfidenceAdj != 10 {
		t.Errorf("sentiment/adj = %s/%d, want STRONG_BULLISH/10", snap.Sentiment, snap.ConfidenceAdj)
	}
}

func TestSnapshot_StrongBearish(t *testing.T) {
	f := &fakeSources{
		options:      OptionsSummary{Sentiment: SentimentBearish},
		fiveDayRatio: 2.0, // LOW dark pool, -1
		insider:      InsiderSummary{NetSentiment: SentimentBearish},
		fearGreed:    70, // greed, -1
	}
	agg := newAggregator(f)

	snap, _ := agg.Snapshot(context.Background(), "TSLA")
	if snap.Score != -6 {
		t.Errorf("score = %d, want -6", snap.Score)
	}
	if snap.Sentiment != SentimentStrongBearish || snap.ConfidenceAdj != -10 {
		t.Errorf("sentiment/adj = %s/%d, want STRONG_BEARISH/-10", snap.Sentiment, snap.ConfidenceAdj)
	}
}

func TestSnapshot_Neutral(t *testing.T) {
	f := &fakeSources{
		options:      OptionsSummary{Sentiment: SentimentNeutral},
		fiveDayRatio: 1.0, // NORMAL dark pool, 0
		insider:      InsiderSummary{NetSentiment: SentimentNeutral},
		fearGreed:    50,
	}
	agg := newAggregator(f)

	snap, _ := agg.Snapshot(context.Background(), "MSFT")
	if snap.Sentiment != SentimentNeutral || snap.ConfidenceAdj != 0 {
		t.Errorf("sentiment/adj = %s/%d, want NEUTRAL/0", snap.Sentiment, snap.ConfidenceAdj)
	}
}

func TestSnapshot_CachesAcrossCalls(t *testing.T) {
	f := &fakeSources{options: OptionsSummary{Sentiment: SentimentNeutral}, fiveDayRatio: 1.0}
	agg := newAggregator(f)
	ctx := context.Background()

	if _, err := agg.Snapshot(ctx, "NFLX"); err != nil {
		t.Fatalf("first Snapshot error: %v", err)
	}
	if _, err := agg.Snapshot(ctx, "NFLX"); err != nil {
		t.Fatalf("second Snapshot error: %v", err)
	}

	if f.optionsCalls != 1 {
		t.Errorf("options source called %d times, want 1 (second call should hit cache)", f.optionsCalls)
	}
}

type erroringVIXSource struct{ err error }

func (e *erroringVIXSource) VIX(ctx context.Context) (float64, error) { return 0, e.err }

func TestSnapshot_PropagatesSourceError(t *testing.T) {
	f := &fakeSources{}
	sources := Sources{
		VIX:           &erroringVIXSource{err: errors.New("boom")},
		Options:       f,
		FiveDayVolume: f,
		Insider:       f,
		FearGreed:     f,
	}
	agg := NewAggregator(sources, cache.NewMemoryCache())

	_, err := agg.Snapshot(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected an error when a source fails")
	}
}
