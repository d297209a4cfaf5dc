package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/llm"
	"github.com/koshedutech/equities-trader/internal/sizing"
	"github.com/koshedutech/equities-trader/internal/tradingerrors"
)

// maxAnalyzeAttempts bounds the retry-with-feedback loop: one original
// attempt plus the single retry tradingerrors.Retryable grants a parse
// failure.
const maxAnalyzeAttempts = 2

// AnalyzeMarket assembles the agent's prompt context, invokes its LLM,
// and returns a validated Decision. A parse failure gets one retry with
// feedback describing what went wrong; if it is still invalid after
// that retry, or if the parsed decision fails schema validation, the
// failure is reported as a HOLD decision carrying the reason rather
// than an error, per ErrParseError/ErrValidationError's documented
// contract in tradingerrors. Only an unrecoverable external failure
// (the LLM call itself erroring) is returned as an error.
func (ba *BaseAgent) AnalyzeMarket(ctx context.Context, in TickInput) (llm.Decision, error) {
	memoryContext, err := ba.buildMemoryContext(ctx)
	if err != nil && ba.deps.Log != nil {
		ba.deps.Log.Warn("agent: memory context unavailable", "agent", ba.Agent.Name, "error", err.Error())
	}

	cheatSheet := buildCheatSheet(ba.capitalAtRisk(ctx, in.VIX))
	systemPrompt := buildSystemPrompt(ba.Agent.Name, ba.Agent.PersonalityText)

	feedback := in.Feedback
	var lastErr error

	for attempt := 1; attempt <= maxAnalyzeAttempts; attempt++ {
		userPrompt := buildUserPrompt(in, memoryContext, cheatSheet, feedback)

		resp, err := ba.deps.LLM.GenerateResponse(ctx, ba.deps.Model, systemPrompt, userPrompt, ba.deps.Temperature, ba.deps.MaxTokens)
		if err != nil {
			return llm.Decision{}, tradingerrors.Wrap(tradingerrors.ErrExternalUnavailable, "agent %s: LLM call failed", ba.Agent.Name)
		}

		decision, parseErr := llm.ParseDecision(resp.Content)
		if parseErr != nil {
			lastErr = tradingerrors.Wrap(tradingerrors.ErrParseError, "agent %s: %v", ba.Agent.Name, parseErr)
			feedback = fmt.Sprintf("Your previous response could not be parsed as the required JSON object (%v). Respond with ONLY the JSON object, no extra prose.", parseErr)
			if attempt < maxAnalyzeAttempts && tradingerrors.Retryable(lastErr) {
				continue
			}
			break
		}

		if err := decision.Validate(); err != nil {
			validationErr := tradingerrors.Wrap(tradingerrors.ErrValidationError, "agent %s: %v", ba.Agent.Name, err)
			if ba.deps.Log != nil {
				ba.deps.Log.Warn("agent: decision failed validation, treating as HOLD", "agent", ba.Agent.Name, "error", validationErr.Error())
			}
			return holdDecision(validationErr.Error()), nil
		}

		ba.afterSuccessfulDecision(ctx)
		return decision, nil
	}

	if ba.deps.Log != nil {
		ba.deps.Log.Warn("agent: exhausted parse retries, treating as HOLD", "agent", ba.Agent.Name, "error", lastErr.Error())
	}
	return holdDecision(lastErr.Error()), nil
}

// holdDecision synthesizes a HOLD decision carrying reason as its
// Reasoning. Used whenever a ParseError or ValidationError is
// recovered from per their sentinel kinds' documented contract
// ("treated identically to HOLD") instead of surfaced as a raw error.
func holdDecision(reason string) llm.Decision {
	return llm.Decision{Decision: llm.ActionHold, Reasoning: reason}
}

// capitalAtRisk returns a closure over the agent's current capital, VIX,
// and default confidence-sizing inputs, used to render the prompt's
// sizing cheat sheet under today's conditions.
func (ba *BaseAgent) capitalAtRisk(ctx context.Context, vix float64) func(confidence float64) float64 {
	var stats *database.AgentStatisticsRow
	if ba.deps.Repo != nil {
		stats, _ = ba.deps.Repo.GetAgentStatistics(ctx, ba.Agent.ID)
	}
	capital := ba.Agent.Capital()
	wins, losses := 0, 0
	if ba.deps.Breaker != nil {
		wins, losses = ba.deps.Breaker.Streaks(ba.Agent.ID)
	}

	return func(confidence float64) float64 {
		ps := sizing.PositionSize(stats, sizing.Input{
			Capital:           capital,
			Confidence:        confidence,
			VIX:               vix,
			RiskLevel:         sizing.RiskMedium,
			SmartMoney:        sizing.SmartMoneyNeutral,
			ConsecutiveWins:   wins,
			ConsecutiveLosses: losses,
		})
		return ps.RecommendedAmount
	}
}

// buildMemoryContext formats the agent's pre-decision memory context
// (performance by confidence/sector, recent losses, global win rate)
// into the text block buildUserPrompt embeds.
func (ba *BaseAgent) buildMemoryContext(ctx context.Context) (string, error) {
	if ba.deps.Memory == nil {
		return "", nil
	}

	pre, err := ba.deps.Memory.GetPreDecisionContext(ctx, ba.Agent.ID, "")
	if err != nil {
		return "", err
	}
	if pre.GlobalTrades == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your track record: %d closed trades, %.0f%% win rate overall.\n", pre.GlobalTrades, pre.GlobalWinRate)

	if len(pre.ByConfidence) > 0 {
		b.WriteString("By confidence band:\n")
		for _, g := range pre.ByConfidence {
			fmt.Fprintf(&b, "- %s: %d trades, %.0f%% win rate\n", g.Key, g.Total, g.WinRate)
		}
	}
	if len(pre.BySector) > 0 {
		b.WriteString("By sector:\n")
		for _, g := range pre.BySector {
			fmt.Fprintf(&b, "- %s: %d trades, %.0f%% win rate\n", g.Key, g.Total, g.WinRate)
		}
	}
	if len(pre.RecentLosses) > 0 {
		b.WriteString("Recent losses and their lessons:\n")
		for _, m := range pre.RecentLosses {
			lesson := "no lesson recorded"
			if m.LessonLearned != nil && *m.LessonLearned != "" {
				lesson = *m.LessonLearned
			}
			fmt.Fprintf(&b, "- %s %s: %s\n", m.Decision, m.Symbol, lesson)
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// afterSuccessfulDecision bumps the autocritique counter and, every
// autocritiqueEvery calls, generates and persists a short reflection on
// the agent's recent performance.
func (ba *BaseAgent) afterSuccessfulDecision(ctx context.Context) {
	_, due := ba.Agent.bumpAutocritiqueCounter()
	if !due {
		return
	}

	critique, err := ba.generateAutocritique(ctx)
	if err != nil {
		if ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: autocritique generation failed", "agent", ba.Agent.Name, "error", err.Error())
		}
		return
	}

	ba.Agent.resetAutocritiqueCounter(critique)
	if ba.deps.Repo != nil {
		if err := ba.deps.Repo.RecordAutocritique(ctx, ba.Agent.ID, critique); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: persist autocritique failed", "agent", ba.Agent.Name, "error", err.Error())
		}
	}
}

// generateAutocritique asks the agent's own LLM to reflect on its last
// few trades, in the same voice as its personality.
func (ba *BaseAgent) generateAutocritique(ctx context.Context) (string, error) {
	recent := ba.Agent.recentHistory(5)
	if len(recent) == 0 {
		return "", fmt.Errorf("agent: no trade history to critique yet")
	}

	var b strings.Builder
	b.WriteString("Here are your last few trading decisions:\n")
	for _, t := range recent {
		fmt.Fprintf(&b, "- %s %s qty=%.2f @ %.2f confidence=%.0f pnl=%.2f: %s\n",
			t.Decision, t.Symbol, t.Quantity, t.Price, t.Confidence, t.PnL, t.Reasoning)
	}
	b.WriteString("\nIn two or three sentences, critique your own recent decision-making. What pattern should you reinforce or correct?")

	resp, err := ba.deps.LLM.GenerateResponse(ctx, ba.deps.Model, buildSystemPrompt(ba.Agent.Name, ba.Agent.PersonalityText), b.String(), ba.deps.Temperature, 300)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
