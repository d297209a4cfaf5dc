// Package broker defines the paper-trading brokerage contract the
// core trades against and a simulated implementation of it, grounded
// on the same random-walk pricing model the teacher used for its
// exchange mock client.
package broker

import (
	"context"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the order's execution style.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// Timeframe is a market-data bar interval.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1Min"
	Timeframe5Min  Timeframe = "5Min"
	Timeframe15Min Timeframe = "15Min"
	Timeframe1Hour Timeframe = "1Hour"
	Timeframe1Day  Timeframe = "1Day"
)

// Account is the paper-trading account snapshot.
type Account struct {
	Cash           float64
	PortfolioValue float64
	BuyingPower    float64
	Equity         float64
}

// Position is one held equity position.
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	UnrealizedPL  float64
}

// Bar is one OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Quote is a top-of-book bid/ask read.
type Quote struct {
	BidPrice float64
	BidSize  float64
	AskPrice float64
	AskSize  float64
	Time     time.Time
}

// OrderRequest is what the core submits to place a trade.
type OrderRequest struct {
	Symbol     string
	Qty        float64
	Side       Side
	Type       OrderType
	TIF        TimeInForce
	LimitPrice float64 // ignored unless Type == OrderTypeLimit
}

// Order is the broker's response to a submitted order, filled
// synchronously in the paper-trading implementation.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	FilledPrice float64
	FilledQty   float64
	Status      string // FILLED | REJECTED
	SubmittedAt time.Time
	Reason      string // populated on REJECTED
}

// Movers is the top gainers/losers/high-volume symbols for a tick.
type Movers struct {
	Gainers    []string
	Losers     []string
	HighVolume []string
}

// MarketHours is the broker's view of the trading calendar, mirrored
// from the core's own market clock for external callers.
type MarketHours struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
	Time      time.Time
}

// Broker is the paper-trading brokerage contract the core trades
// against. A real adapter (e.g. wrapping a brokerage REST API) and the
// in-process PaperBroker both satisfy it.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetMarketData(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Bar, error)
	GetLatestQuote(ctx context.Context, symbol string) (Quote, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetMovers(ctx context.Context, limit int) (Movers, error)
	IsMarketOpen(ctx context.Context) (bool, error)
	GetMarketHours(ctx context.Context) (MarketHours, error)
}
