package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/internal/marketclock"
)

const (
	simulatedSpreadPct  = 0.0008
	simulatedVolatility = 0.015
	priceUpdateInterval = time.Second
)

// PaperBroker is an in-process simulated brokerage account: one per
// agent, seeded with starting cash and a random-walk price feed over a
// fixed symbol universe, filling every order synchronously.
type PaperBroker struct {
	calendar    *marketclock.Calendar
	feePerTrade float64

	mu          sync.Mutex
	cash        float64
	positions   map[string]*Position
	prices      map[string]float64
	lastUpdate  time.Time
	rng         *rand.Rand
	nextOrderID int64
}

// NewPaperBroker returns a PaperBroker seeded with startingCash and
// seedPrices (symbol -> last price), charging feePerTrade per fill.
func NewPaperBroker(calendar *marketclock.Calendar, startingCash, feePerTrade float64, seedPrices map[string]float64) *PaperBroker {
	prices := make(map[string]float64, len(seedPrices))
	for symbol, price := range seedPrices {
		prices[symbol] = price
	}

	return &PaperBroker{
		calendar:    calendar,
		feePerTrade: feePerTrade,
		cash:        startingCash,
		positions:   make(map[string]*Position),
		prices:      prices,
		lastUpdate:  time.Now(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// updatePrices applies a small random walk to every tracked symbol, at
// most once per second, mirroring the teacher's mock-client cadence.
func (p *PaperBroker) updatePrices() {
	if time.Since(p.lastUpdate) < priceUpdateInterval {
		return
	}
	for symbol, price := range p.prices {
		change := (p.rng.Float64() - 0.5) * 0.01
		p.prices[symbol] = price * (1 + change)
	}
	p.lastUpdate = time.Now()
}

func (p *PaperBroker) priceOf(symbol string) (float64, bool) {
	p.updatePrices()
	price, ok := p.prices[symbol]
	return price, ok
}

// GetAccount returns the account's cash and mark-to-market valuation.
func (p *PaperBroker) GetAccount(ctx context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	portfolioValue := p.cash
	for symbol, pos := range p.positions {
		price, ok := p.priceOf(symbol)
		if !ok {
			price = pos.AvgEntryPrice
		}
		portfolioValue += pos.Qty * price
	}

	return Account{
		Cash:           p.cash,
		PortfolioValue: portfolioValue,
		BuyingPower:    p.cash,
		Equity:         portfolioValue,
	}, nil
}

// GetPositions returns a snapshot of every open position, with
// unrealized P&L marked to the current simulated price.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for symbol, pos := range p.positions {
		price, ok := p.priceOf(symbol)
		if !ok {
			price = pos.AvgEntryPrice
		}
		out = append(out, Position{
			Symbol:        symbol,
			Qty:           pos.Qty,
			AvgEntryPrice: pos.AvgEntryPrice,
			UnrealizedPL:  (price - pos.AvgEntryPrice) * pos.Qty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetMarketData synthesizes limit OHLCV bars for symbol ending at the
// current simulated price, working backwards the way the teacher's
// mock kline generator does.
func (p *PaperBroker) GetMarketData(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Bar, error) {
	p.mu.Lock()
	basePrice, ok := p.priceOf(symbol)
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("broker: unknown symbol %q", symbol)
	}

	interval := intervalFor(timeframe)
	now := time.Now()

	bars := make([]Bar, limit)
	current := basePrice
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(limit-i) * interval)
		open := current
		change := (p.rng.Float64() - 0.5) * simulatedVolatility * 2
		closePrice := open * (1 + change)
		high := math.Max(open, closePrice) * (1 + p.rng.Float64()*simulatedVolatility*0.5)
		low := math.Min(open, closePrice) * (1 - p.rng.Float64()*simulatedVolatility*0.5)
		volume := basePrice * (1000 + p.rng.Float64()*5000)

		bars[i] = Bar{Timestamp: openTime, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}
		current = closePrice
	}
	return bars, nil
}

func intervalFor(tf Timeframe) time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// GetLatestQuote derives a simulated top-of-book quote by applying a
// fixed spread around the current simulated price.
func (p *PaperBroker) GetLatestQuote(ctx context.Context, symbol string) (Quote, error) {
	p.mu.Lock()
	price, ok := p.priceOf(symbol)
	p.mu.Unlock()
	if !ok {
		return Quote{}, fmt.Errorf("broker: unknown symbol %q", symbol)
	}

	half := price * simulatedSpreadPct / 2
	return Quote{
		BidPrice: price - half,
		BidSize:  100,
		AskPrice: price + half,
		AskSize:  100,
		Time:     time.Now(),
	}, nil
}

// SubmitOrder fills an order synchronously against the simulated
// price, applying the fixed per-trade fee and updating cash and the
// weighted-average position.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.priceOf(req.Symbol)
	if !ok {
		return Order{Status: "REJECTED", Reason: "unknown symbol"}, fmt.Errorf("broker: unknown symbol %q", req.Symbol)
	}

	fillPrice := price
	if req.Type == OrderTypeLimit && req.LimitPrice > 0 {
		fillPrice = req.LimitPrice
	}

	p.nextOrderID++
	order := Order{
		ID:          fmt.Sprintf("paper-%d", p.nextOrderID),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Qty:         req.Qty,
		SubmittedAt: time.Now(),
	}

	cost := fillPrice*req.Qty + p.feePerTrade

	switch req.Side {
	case SideBuy:
		if cost > p.cash {
			order.Status = "REJECTED"
			order.Reason = "insufficient capital"
			return order, fmt.Errorf("broker: insufficient capital for %s: need %.2f, have %.2f", req.Symbol, cost, p.cash)
		}
		p.cash -= cost
		p.applyFill(req.Symbol, req.Qty, fillPrice)

	case SideSell:
		pos, ok := p.positions[req.Symbol]
		if !ok || pos.Qty < req.Qty {
			order.Status = "REJECTED"
			order.Reason = "insufficient position"
			return order, fmt.Errorf("broker: insufficient position in %s to sell %.4f", req.Symbol, req.Qty)
		}
		p.cash += fillPrice*req.Qty - p.feePerTrade
		p.applyFill(req.Symbol, -req.Qty, fillPrice)
	}

	order.FilledPrice = fillPrice
	order.FilledQty = req.Qty
	order.Status = "FILLED"
	return order, nil
}

// applyFill updates the weighted-average position for symbol by
// deltaQty (negative on a SELL), deleting the entry once qty reaches
// zero. Caller must hold p.mu.
func (p *PaperBroker) applyFill(symbol string, deltaQty, price float64) {
	pos, exists := p.positions[symbol]
	if !exists {
		if deltaQty > 0 {
			p.positions[symbol] = &Position{Symbol: symbol, Qty: deltaQty, AvgEntryPrice: price}
		}
		return
	}

	newQty := pos.Qty + deltaQty
	if deltaQty > 0 {
		// Weighted-average entry on add-to-BUY.
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + price*deltaQty) / newQty
	}
	pos.Qty = newQty

	if pos.Qty <= 0 {
		delete(p.positions, symbol)
	}
}

// GetMovers ranks the tracked universe by simulated 24h change,
// splitting into gainers, losers, and a high-volume bucket.
func (p *PaperBroker) GetMovers(ctx context.Context, limit int) (Movers, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updatePrices()

	type ranked struct {
		symbol string
		change float64
	}
	var all []ranked
	for symbol := range p.prices {
		all = append(all, ranked{symbol: symbol, change: (p.rng.Float64() - 0.5) * 0.1})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].change > all[j].change })

	var gainers, losers, highVolume []string
	for _, r := range all {
		if r.change > 0 && len(gainers) < limit {
			gainers = append(gainers, r.symbol)
		}
		if r.change < 0 && len(losers) < limit {
			losers = append(losers, r.symbol)
		}
	}
	for i := 0; i < len(all) && i < limit; i++ {
		highVolume = append(highVolume, all[i].symbol)
	}

	return Movers{Gainers: gainers, Losers: losers, HighVolume: highVolume}, nil
}

// IsMarketOpen reports whether the market is currently open per the
// broker's market calendar.
func (p *PaperBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	hours, err := p.GetMarketHours(ctx)
	if err != nil {
		return false, err
	}
	return hours.IsOpen, nil
}

// GetMarketHours reports the current market status and the time until
// the next session boundary.
func (p *PaperBroker) GetMarketHours(ctx context.Context) (MarketHours, error) {
	now := time.Now()
	reading := p.calendar.Read(now)
	untilNext := p.calendar.TimeUntilNextSession(now)

	hours := MarketHours{IsOpen: reading.Status == marketclock.StatusOpen, Time: now}
	if hours.IsOpen {
		hours.NextClose = now.Add(untilNext)
	} else {
		hours.NextOpen = now.Add(untilNext)
	}
	return hours, nil
}
