// Package symbols holds the static tradable-ticker allow-set and the
// symbol-to-sector mapping used to enrich trade memories and pattern
// statistics.
package symbols

import (
	"fmt"
	"math/rand"
)

// Sector buckets a symbol for sector-level performance aggregation.
// "Unknown" is used whenever a symbol has no entry in sectorOf.
const UnknownSector = "Unknown"

// sectorOf is the static symbol -> sector mapping. It is intentionally
// a small representative set rather than an exhaustive listing of every
// S&P 500 constituent; symbols outside it resolve to UnknownSector.
var sectorOf = map[string]string{
	"AAPL": "Technology",
	"MSFT": "Technology",
	"NVDA": "Technology",
	"GOOG": "Technology",
	"GOOGL": "Technology",
	"META": "Technology",
	"AMD":  "Technology",
	"CRM":  "Technology",
	"ORCL": "Technology",
	"ADBE": "Technology",

	"AMZN": "Consumer Discretionary",
	"TSLA": "Consumer Discretionary",
	"HD":   "Consumer Discretionary",
	"NKE":  "Consumer Discretionary",
	"MCD":  "Consumer Discretionary",

	"JPM": "Financials",
	"BAC": "Financials",
	"WFC": "Financials",
	"GS":  "Financials",
	"MS":  "Financials",
	"V":   "Financials",
	"MA":  "Financials",

	"JNJ":  "Healthcare",
	"UNH":  "Healthcare",
	"PFE":  "Healthcare",
	"ABBV": "Healthcare",
	"LLY":  "Healthcare",
	"MRK":  "Healthcare",

	"XOM": "Energy",
	"CVX": "Energy",
	"COP": "Energy",

	"PG":  "Consumer Staples",
	"KO":  "Consumer Staples",
	"PEP": "Consumer Staples",
	"WMT": "Consumer Staples",
	"COST": "Consumer Staples",

	"BA":  "Industrials",
	"CAT": "Industrials",
	"HON": "Industrials",
	"GE":  "Industrials",
	"UPS": "Industrials",

	"NEE": "Utilities",
	"DUK": "Utilities",

	"SPY": "ETF",
	"QQQ": "ETF",
	"DIA": "ETF",
	"IWM": "ETF",
	"VTI": "ETF",
	"XLK": "ETF",
	"XLF": "ETF",
}

// leadersBySector lists a default substitution candidate per sector, for
// callers that opt into the substitute-suggestion policy instead of the
// default reject.
var leadersBySector = map[string][]string{
	"Technology":              {"AAPL", "MSFT", "NVDA"},
	"Consumer Discretionary":  {"AMZN", "HD"},
	"Financials":              {"JPM", "V"},
	"Healthcare":              {"UNH", "JNJ"},
	"Energy":                  {"XOM", "CVX"},
	"Consumer Staples":        {"PG", "KO"},
	"Industrials":             {"CAT", "HON"},
	"Utilities":               {"NEE", "DUK"},
	"ETF":                     {"SPY", "QQQ"},
}

// defaultSector is used when a whitelist miss has no obviously-related
// sector to suggest a substitute from.
const defaultSector = "Technology"

// Whitelist is the static tradable-ticker allow-set: S&P 500, NASDAQ
// 100, and a fixed set of popular ETFs, represented here by the sector
// map's key set plus any additional tickers passed to New.
type Whitelist struct {
	allowed map[string]bool
	rng     *rand.Rand
}

// New builds a Whitelist from the static sector map plus any extra
// symbols supplied (e.g. a deployment-specific addendum).
func New(extra ...string) *Whitelist {
	allowed := make(map[string]bool, len(sectorOf)+len(extra))
	for symbol := range sectorOf {
		allowed[symbol] = true
	}
	for _, symbol := range extra {
		allowed[symbol] = true
	}
	return &Whitelist{allowed: allowed, rng: rand.New(rand.NewSource(1))}
}

// IsAllowed reports whether symbol may be traded.
func (w *Whitelist) IsAllowed(symbol string) bool {
	return w.allowed[symbol]
}

// Symbols returns every allowed ticker, in no particular order. Used
// to seed a paper broker's simulated price universe at startup.
func (w *Whitelist) Symbols() []string {
	out := make([]string, 0, len(w.allowed))
	for symbol := range w.allowed {
		out = append(out, symbol)
	}
	return out
}

// SectorOf returns symbol's sector, or UnknownSector if it has none.
func SectorOf(symbol string) string {
	if sector, ok := sectorOf[symbol]; ok {
		return sector
	}
	return UnknownSector
}

// CheckResult is the whitelist's verdict for a proposed symbol.
type CheckResult struct {
	Allowed   bool
	Reason    string
	Suggested string // only set when a substitute was requested and found
}

// Check validates symbol against the whitelist. The default policy is
// reject-with-reason: Suggested is left empty unless allowSubstitute is
// true, since silent substitution changes what the agent believes it
// traded.
func (w *Whitelist) Check(symbol string, allowSubstitute bool) CheckResult {
	if w.IsAllowed(symbol) {
		return CheckResult{Allowed: true}
	}

	result := CheckResult{
		Allowed: false,
		Reason:  fmt.Sprintf("%s is not in the tradable symbol whitelist", symbol),
	}

	if allowSubstitute {
		result.Suggested = w.suggestSubstitute(symbol)
	}

	return result
}

// suggestSubstitute picks a random leader from symbol's heuristic
// sector, defaulting to Technology when the sector is unknown.
func (w *Whitelist) suggestSubstitute(symbol string) string {
	sector := SectorOf(symbol)
	if sector == UnknownSector {
		sector = defaultSector
	}

	leaders := leadersBySector[sector]
	if len(leaders) == 0 {
		leaders = leadersBySector[defaultSector]
	}
	return leaders[w.rng.Intn(len(leaders))]
}
