// Package marketdata provides simulated implementations of the
// earnings-calendar and smart-money source interfaces the core
// consumes as external collaborators. A real deployment swaps these
// for a news aggregator and an options/insider data vendor; the core
// never depends on this package directly, only on the interfaces it
// satisfies, the same boundary the teacher drew around its exchange
// mock client.
package marketdata

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/internal/smartmoney"
)

// Simulated backs every external gate-stack data source with
// deterministic-per-symbol pseudo-randomness (seeded from the symbol's
// hash) so repeated calls within a process run drift slowly instead of
// jumping around, the same texture as the teacher's MockClient random
// walk applied to macro/options/insider reads instead of prices.
type Simulated struct {
	mu        sync.Mutex
	vix       float64
	fearGreed float64
	lastMacro time.Time
}

// NewSimulated seeds a baseline VIX/fear-greed macro reading.
func NewSimulated() *Simulated {
	return &Simulated{
		vix:       18.0,
		fearGreed: 52.0,
		lastMacro: time.Now(),
	}
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

// driftMacro nudges VIX and fear/greed toward a new random value at
// most once a second, mirroring the teacher's once-per-second price
// update throttle.
func (s *Simulated) driftMacro() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastMacro) < time.Second {
		return
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.vix += (r.Float64() - 0.5) * 1.5
	if s.vix < 9 {
		s.vix = 9
	}
	if s.vix > 45 {
		s.vix = 45
	}
	s.fearGreed += (r.Float64() - 0.5) * 4
	if s.fearGreed < 5 {
		s.fearGreed = 5
	}
	if s.fearGreed > 95 {
		s.fearGreed = 95
	}
	s.lastMacro = time.Now()
}

// VIX implements smartmoney.VIXSource.
func (s *Simulated) VIX(_ context.Context) (float64, error) {
	s.driftMacro()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vix, nil
}

// FearGreedIndex implements smartmoney.FearGreedSource.
func (s *Simulated) FearGreedIndex(_ context.Context) (float64, error) {
	s.driftMacro()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fearGreed, nil
}

// OptionsSummary implements smartmoney.OptionsSource with a
// symbol-seeded put/call read.
func (s *Simulated) OptionsSummary(_ context.Context, symbol string) (smartmoney.OptionsSummary, error) {
	r := rand.New(rand.NewSource(symbolSeed(symbol) ^ time.Now().Unix()/300))
	pcRatio := 0.6 + r.Float64()*0.8
	sentiment := smartmoney.SentimentNeutral
	switch {
	case pcRatio < 0.75:
		sentiment = smartmoney.SentimentBullish
	case pcRatio > 1.15:
		sentiment = smartmoney.SentimentBearish
	}
	return smartmoney.OptionsSummary{
		PutCallVolumeRatio: pcRatio,
		PutCallOIRatio:     pcRatio * (0.9 + r.Float64()*0.2),
		UnusualActivity:    r.Intn(5),
		ImpliedVolatility:  0.18 + r.Float64()*0.25,
		Sentiment:          sentiment,
	}, nil
}

// FiveDayVolumeRatio implements smartmoney.FiveDayVolumeSource.
func (s *Simulated) FiveDayVolumeRatio(_ context.Context, symbol string) (float64, error) {
	r := rand.New(rand.NewSource(symbolSeed(symbol) ^ time.Now().Unix()/300))
	return 0.5 + r.Float64()*1.3, nil
}

// InsiderSummary implements smartmoney.InsiderSource.
func (s *Simulated) InsiderSummary(_ context.Context, symbol string) (smartmoney.InsiderSummary, error) {
	r := rand.New(rand.NewSource(symbolSeed(symbol) ^ time.Now().Unix()/3600))
	buys := r.Intn(6)
	sells := r.Intn(6)
	sentiment := smartmoney.SentimentNeutral
	switch {
	case buys-sells >= 2:
		sentiment = smartmoney.SentimentBullish
	case sells-buys >= 2:
		sentiment = smartmoney.SentimentBearish
	}
	return smartmoney.InsiderSummary{BuyCount: buys, SellCount: sells, NetSentiment: sentiment}, nil
}

// NextEarningsDate implements earnings.Source with a symbol-seeded
// date roughly on a quarterly cadence.
func (s *Simulated) NextEarningsDate(_ context.Context, symbol string) (time.Time, bool, time.Time, bool, error) {
	r := rand.New(rand.NewSource(symbolSeed(symbol)))
	daysOut := 5 + r.Intn(85)
	next := time.Now().AddDate(0, 0, daysOut)
	last := next.AddDate(0, 0, -91)
	return next, true, last, true, nil
}

// SeedPrices generates a deterministic symbol-seeded starting price for
// every symbol, used to initialize a PaperBroker's simulated price
// universe at startup.
func SeedPrices(syms []string) map[string]float64 {
	prices := make(map[string]float64, len(syms))
	for _, sym := range syms {
		r := rand.New(rand.NewSource(symbolSeed(sym)))
		prices[sym] = 20 + r.Float64()*480
	}
	return prices
}
