// Package smartmoney aggregates options flow, dark-pool activity,
// insider transactions, and macro sentiment into one composite signal
// per symbol.
package smartmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koshedutech/equities-trader/internal/cache"
)

const cacheTTL = 15 * time.Minute

// Sentiment is a directional read, shared by the options-chain and
// overall-score outputs.
type Sentiment string

const (
	SentimentStrongBullish Sentiment = "STRONG_BULLISH"
	SentimentBullish       Sentiment = "BULLISH"
	SentimentNeutral       Sentiment = "NEUTRAL"
	SentimentBearish       Sentiment = "BEARISH"
	SentimentStrongBearish Sentiment = "STRONG_BEARISH"
)

// OptionsSummary is the options-chain read for a symbol.
type OptionsSummary struct {
	PutCallVolumeRatio float64
	PutCallOIRatio     float64
	UnusualActivity    int
	ImpliedVolatility  float64
	Sentiment          Sentiment
}

// DarkPoolEstimate approximates off-exchange activity from the 5-day
// volume ratio, since no reference repo in the pack has a real
// dark-pool feed to wrap.
type DarkPoolEstimate struct {
	Level     string // HIGH | LOW | NORMAL
	Estimated float64
}

// InsiderSummary approximates Form-4 filings for a symbol.
type InsiderSummary struct {
	BuyCount     int
	SellCount    int
	NetSentiment Sentiment
}

// Snapshot is the full composite read for one symbol.
type Snapshot struct {
	VIX           float64
	FearGreed     float64
	Options       OptionsSummary
	DarkPool      DarkPoolEstimate
	Insider       InsiderSummary
	Score         int
	Sentiment     Sentiment
	ConfidenceAdj int
}

// Sources is the set of upstream providers the aggregator fans out to
// concurrently. Each is a thin interface so a real broker/data-vendor
// client can be swapped in without touching the aggregation logic.
type Sources struct {
	VIX           VIXSource
	Options       OptionsSource
	FiveDayVolume FiveDayVolumeSource
	Insider       InsiderSource
	FearGreed     FearGreedSource
}

type VIXSource interface {
	VIX(ctx context.Context) (float64, error)
}

type OptionsSource interface {
	OptionsSummary(ctx context.Context, symbol string) (OptionsSummary, error)
}

type FiveDayVolumeSource interface {
	FiveDayVolumeRatio(ctx context.Context, symbol string) (float64, error)
}

type InsiderSource interface {
	InsiderSummary(ctx context.Context, symbol string) (InsiderSummary, error)
}

type FearGreedSource interface {
	FearGreedIndex(ctx context.Context) (float64, error)
}

// Aggregator produces a cached Snapshot per symbol.
type Aggregator struct {
	sources Sources
	cache   cache.TTLCache
}

// NewAggregator builds an Aggregator over sources, caching behind c.
func NewAggregator(sources Sources, c cache.TTLCache) *Aggregator {
	return &Aggregator{sources: sources, cache: c}
}

// Snapshot returns the composite smart-money read for symbol, serving
// from cache when fresh and fanning out concurrently on a miss.
func (a *Aggregator) Snapshot(ctx context.Context, symbol string) (Snapshot, error) {
	key := "smartmoney:" + symbol

	if cached, ok := a.cache.Get(ctx, key); ok {
		var snap Snapshot
		if err := json.Unmarshal(cached, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := a.fetch(ctx, symbol)
	if err != nil {
		return Snapshot{}, err
	}

	if encoded, err := json.Marshal(snap); err == nil {
		a.cache.Set(ctx, key, encoded, cacheTTL)
	}

	return snap, nil
}

func (a *Aggregator) fetch(ctx context.Context, symbol string) (Snapshot, error) {
	group, gctx := errgroup.WithContext(ctx)

	var (
		vix          float64
		fearGreed    float64
		options      OptionsSummary
		fiveDayRatio float64
		insider      InsiderSummary
	)

	group.Go(func() error {
		v, err := a.sources.VIX.VIX(gctx)
		if err != nil {
			return fmt.Errorf("smartmoney: VIX: %w", err)
		}
		vix = v
		return nil
	})

	group.Go(func() error {
		o, err := a.sources.Options.OptionsSummary(gctx, symbol)
		if err != nil {
			return fmt.Errorf("smartmoney: options chain: %w", err)
		}
		options = o
		return nil
	})

	group.Go(func() error {
		r, err := a.sources.FiveDayVolume.FiveDayVolumeRatio(gctx, symbol)
		if err != nil {
			return fmt.Errorf("smartmoney: 5-day volume: %w", err)
		}
		fiveDayRatio = r
		return nil
	})

	group.Go(func() error {
		i, err := a.sources.Insider.InsiderSummary(gctx, symbol)
		if err != nil {
			return fmt.Errorf("smartmoney: insider filings: %w", err)
		}
		insider = i
		return nil
	})

	group.Go(func() error {
		f, err := a.sources.FearGreed.FearGreedIndex(gctx)
		if err != nil {
			return fmt.Errorf("smartmoney: fear/greed index: %w", err)
		}
		fearGreed = f
		return nil
	})

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	darkPool := classifyDarkPool(fiveDayRatio)
	score, sentiment, confidenceAdj := score(options.Sentiment, darkPool, insider.NetSentiment, fearGreed)

	return Snapshot{
		VIX:           vix,
		FearGreed:     fearGreed,
		Options:       options,
		DarkPool:      darkPool,
		Insider:       insider,
		Score:         score,
		Sentiment:     sentiment,
		ConfidenceAdj: confidenceAdj,
	}, nil
}

func classifyDarkPool(fiveDayRatio float64) DarkPoolEstimate {
	switch {
	case fiveDayRatio < 0.7:
		return DarkPoolEstimate{Level: "HIGH", Estimated: 0.50}
	case fiveDayRatio > 1.5:
		return DarkPoolEstimate{Level: "LOW", Estimated: 0.30}
	default:
		return DarkPoolEstimate{Level: "NORMAL", Estimated: 0.40}
	}
}

// score combines each axis's directional weight (options ±2, dark pool
// direction ±1, insider ±2, fear/greed ±1) into a net score and bands
// it into an overall sentiment with a confidence adjustment.
func score(options Sentiment, darkPool DarkPoolEstimate, insider Sentiment, fearGreed float64) (int, Sentiment, int) {
	net := 0
	net += axisWeight(options, 2)
	net += darkPoolWeight(darkPool)
	net += axisWeight(insider, 2)
	net += fearGreedWeight(fearGreed)

	switch {
	case net >= 3:
		return net, SentimentStrongBullish, 10
	case net >= 1:
		return net, SentimentBullish, 5
	case net <= -3:
		return net, SentimentStrongBearish, -10
	case net <= -1:
		return net, SentimentBearish, -5
	default:
		return net, SentimentNeutral, 0
	}
}

func axisWeight(s Sentiment, weight int) int {
	switch s {
	case SentimentBullish, SentimentStrongBullish:
		return weight
	case SentimentBearish, SentimentStrongBearish:
		return -weight
	default:
		return 0
	}
}

// darkPoolWeight treats HIGH dark-pool estimated activity as bullish
// (institutions accumulating off-tape) and LOW as bearish, weight ±1.
func darkPoolWeight(d DarkPoolEstimate) int {
	switch d.Level {
	case "HIGH":
		return 1
	case "LOW":
		return -1
	default:
		return 0
	}
}

// fearGreedWeight: low fear/greed (fear) is contrarian-bullish for this
// aggregate, high fear/greed (greed) is contrarian-bearish, weight ±1.
func fearGreedWeight(index float64) int {
	switch {
	case index < 40:
		return 1
	case index > 60:
		return -1
	default:
		return 0
	}
}
