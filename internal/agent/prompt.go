package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koshedutech/equities-trader/internal/indicators"
	"github.com/koshedutech/equities-trader/internal/memory"
)

// systemPromptTemplate is the fixed instruction every agent call shares;
// only the agent's name and personality text are filled in per agent,
// and the JSON schema example is the same for every agent.
const systemPromptTemplate = `You are %s, an autonomous equities trading agent with the following personality and approach:

%s

You manage a real paper-trading account and must decide, on each call, whether to BUY, SELL, or HOLD. You are shown recent technical analysis for a set of candidate symbols, a smart-money read on the broad market, your own trading history and lessons learned, and a position-sizing cheat sheet. Use all of it.

Your response must be ONLY a JSON object with exactly this shape:
{
  "decision": "BUY" | "SELL" | "HOLD",
  "symbol": "TICKER or empty string for HOLD",
  "quantity": number (shares; 0 for HOLD),
  "confidence": number (0-100),
  "risk_level": "LOW" | "MEDIUM" | "HIGH",
  "reasoning": "one or two sentences"
}

Only pick a SELL for a symbol you currently hold. Be conservative: a HOLD is always an acceptable answer when nothing stands out.`

// kellyCheatSheetConfidences are the confidence bands shown in the
// prompt's sizing cheat sheet, letting the LLM reason about how its
// stated confidence will translate into position size before it answers.
var kellyCheatSheetConfidences = []float64{50, 60, 70, 80, 90, 95}

// buildSystemPrompt renders the agent's personality into the shared
// instruction template.
func buildSystemPrompt(name, personality string) string {
	if strings.TrimSpace(personality) == "" {
		personality = "You favor disciplined, risk-aware trading with no particular style bias."
	}
	return fmt.Sprintf(systemPromptTemplate, name, personality)
}

// buildUserPrompt assembles the per-tick market, memory, and sizing
// context the LLM needs to make a decision.
func buildUserPrompt(in TickInput, memoryContext string, cheatSheet string, feedback string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Market snapshot: VIX=%.1f, Fear/Greed=%.0f, overall sentiment=%s.\n\n", in.VIX, in.FearGreed, in.OverallSentiment)

	if feedback != "" {
		b.WriteString("Feedback from your previous attempt:\n" + feedback + "\n\n")
	}

	if memoryContext != "" {
		b.WriteString(memoryContext + "\n\n")
	}

	b.WriteString("Candidate symbols (technical analysis):\n")
	for _, mover := range sortedMovers(in.Movers) {
		fmt.Fprintf(&b, "- %s: price=%.2f, trend=%s (strength %.0f), RSI=%.1f (%s), volume_ratio=%.2f (%s), support=%.2f, resistance=%.2f\n",
			mover.Symbol, mover.Price, mover.Analysis.Trend, mover.Analysis.TrendStrength,
			mover.Analysis.RSI, mover.Analysis.RSISignal, mover.Analysis.VolumeRatio, mover.Analysis.VolumeSignal,
			mover.Analysis.SupportLevel, mover.Analysis.ResistanceLevel)
	}

	b.WriteString("\nPosition sizing cheat sheet (dollar amount this account would risk at each confidence level, current conditions):\n" + cheatSheet + "\n")

	return b.String()
}

// sortedMovers returns movers ordered by symbol for deterministic
// prompt text across otherwise-identical ticks.
func sortedMovers(movers []MoverCandidate) []MoverCandidate {
	out := make([]MoverCandidate, len(movers))
	copy(out, movers)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// findAnalysis locates a mover's technical analysis by symbol.
func findAnalysis(movers []MoverCandidate, symbol string) (indicators.Analysis, float64, bool) {
	for _, m := range movers {
		if m.Symbol == symbol {
			return m.Analysis, m.Price, true
		}
	}
	return indicators.Analysis{}, 0, false
}

// buildCheatSheet renders the Kelly recommended-dollar-amount at each
// confidence band in kellyCheatSheetConfidences, holding VIX and risk
// level fixed at the market's current reading so the table reflects
// today's conditions rather than a generic reference table.
func buildCheatSheet(capitalAtRisk func(confidence float64) float64) string {
	var b strings.Builder
	for _, c := range kellyCheatSheetConfidences {
		fmt.Fprintf(&b, "  confidence=%.0f -> $%.2f\n", c, capitalAtRisk(c))
	}
	return b.String()
}

// confidenceBucketKey mirrors internal/memory's private bucket
// boundaries so the combiner's confidence-bucket lookup lines up with
// the buckets GetAgentPerformanceByCriteria(CriterionConfidenceBucket)
// actually produced.
func confidenceBucketKey(confidence float64) string {
	switch {
	case confidence < 60:
		return "50-60"
	case confidence < 70:
		return "60-70"
	case confidence < 80:
		return "70-80"
	case confidence < 90:
		return "80-90"
	default:
		return "90-100"
	}
}

// confidenceBucketWinRate finds the win rate for confidence's bucket
// among groups, if any trades have landed in it yet.
func confidenceBucketWinRate(groups []memory.GroupStats, confidence float64) (float64, bool) {
	key := confidenceBucketKey(confidence)
	for _, g := range groups {
		if g.Key == key {
			return g.WinRate / 100, true
		}
	}
	return 0, false
}
