package agent

import (
	"context"
	"sort"

	"github.com/koshedutech/equities-trader/internal/llm"
)

// Mode selects how the Consortium combines its member agents' votes.
type Mode string

const (
	// ModeWeighted scores each action by performance-weighted
	// confidence and is the default.
	ModeWeighted Mode = "weighted"
	// ModeVote gives each member a single plurality vote.
	ModeVote Mode = "vote"
)

// minCollectiveConfidence is the weighted mode's mean-confidence floor
// below which the combined decision is rejected outright.
const minCollectiveConfidence = 55.0

// insufficientConfidenceReason matches the reason the source platform
// surfaces to its own dashboard for this rejection.
const insufficientConfidenceReason = "Confiance collective insuffisante"

// memberVote is one solo agent's contribution to a Consortium round,
// paired with the performance weight it carries in weighted mode.
type memberVote struct {
	decision    llm.Decision
	performance float64
}

// Consortium is the meta-agent: it queries every solo member with the
// same tick inputs and combines their decisions into one, which is
// then subjected to the same gate stack as a solo decision and
// executed against the Consortium's own paper-trading ledger.
type Consortium struct {
	ID      string
	Name    string
	Mode    Mode
	Members []*BaseAgent
	Self    *BaseAgent
}

// NewConsortium builds a Consortium over members, defaulting to
// weighted mode. self is the Consortium's own BaseAgent — its ledger
// and broker account are distinct from every solo member's.
func NewConsortium(id, name string, members []*BaseAgent, self *BaseAgent) *Consortium {
	return &Consortium{ID: id, Name: name, Mode: ModeWeighted, Members: members, Self: self}
}

// Run queries every member, combines their decisions into one, and
// carries that decision through the Consortium's own ExecuteTrade —
// the same gate stack, sizing, and broker path a solo agent uses.
func (c *Consortium) Run(ctx context.Context, in TickInput) (llm.Decision, bool, string) {
	decision, err := c.Decide(ctx, in)
	if err != nil {
		return llm.Decision{}, false, err.Error()
	}
	if decision.Decision == llm.ActionHold {
		c.Self.Agent.recordHistory(TradeRecord{
			Decision:  string(llm.ActionHold),
			Reasoning: decision.Reasoning,
		})
		return decision, false, decision.Reasoning
	}
	executed, reason := c.Self.ExecuteTrade(ctx, in, decision)
	return decision, executed, reason
}

// Decide queries every member for its own decision, then combines the
// results per the Consortium's Mode. A member whose AnalyzeMarket call
// errors is excluded from the combination rather than failing the
// round outright.
func (c *Consortium) Decide(ctx context.Context, in TickInput) (llm.Decision, error) {
	votes := make([]memberVote, 0, len(c.Members))
	for _, member := range c.Members {
		decision, err := member.AnalyzeMarket(ctx, in)
		if err != nil {
			continue
		}
		votes = append(votes, memberVote{decision: decision, performance: member.Agent.PerformancePct()})
	}

	if len(votes) == 0 {
		return llm.Decision{Decision: llm.ActionHold, Reasoning: "no member agent produced a usable decision"}, nil
	}

	if c.Mode == ModeVote {
		return combineByVote(votes), nil
	}
	return combineByWeight(votes), nil
}

// combineByVote implements plurality voting: each member contributes
// one vote for its decision, ties are broken by highest average
// confidence within the winning action, and the symbol is taken from
// the highest-confidence voter for that action.
func combineByVote(votes []memberVote) llm.Decision {
	tally := map[llm.Action][]memberVote{}
	for _, v := range votes {
		tally[v.decision.Decision] = append(tally[v.decision.Decision], v)
	}

	var winner llm.Action
	var winnerGroup []memberVote
	bestCount, bestAvgConfidence := -1, -1.0

	actions := make([]llm.Action, 0, len(tally))
	for action := range tally {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	for _, action := range actions {
		group := tally[action]
		avgConfidence := averageConfidence(group)
		if len(group) > bestCount || (len(group) == bestCount && avgConfidence > bestAvgConfidence) {
			winner = action
			winnerGroup = group
			bestCount = len(group)
			bestAvgConfidence = avgConfidence
		}
	}

	best := highestConfidence(winnerGroup)
	return llm.Decision{
		Decision:   winner,
		Symbol:     best.decision.Symbol,
		Quantity:   best.decision.Quantity,
		Confidence: bestAvgConfidence,
		RiskLevel:  best.decision.RiskLevel,
		Reasoning:  "plurality vote across member agents",
	}
}

// combineByWeight implements the default weighted mode: each member's
// weight is its performance percentage floored at zero plus one, so a
// consistently profitable agent outweighs a flat or losing one without
// ever reaching zero influence. The action with the highest weighted
// confidence score wins; a collective mean confidence under the floor
// rejects the round with a HOLD regardless of score.
func combineByWeight(votes []memberVote) llm.Decision {
	meanConfidence := averageConfidence(votes)
	if meanConfidence < minCollectiveConfidence {
		return llm.Decision{Decision: llm.ActionHold, Reasoning: insufficientConfidenceReason}
	}

	totalWeight := 0.0
	weights := make([]float64, len(votes))
	for i, v := range votes {
		w := v.performance
		if w < 0 {
			w = 0
		}
		w += 1
		weights[i] = w
		totalWeight += w
	}

	scores := map[llm.Action]float64{}
	for i, v := range votes {
		normalized := weights[i] / totalWeight
		scores[v.decision.Decision] += normalized * (v.decision.Confidence / 100)
	}

	var winner llm.Action
	bestScore := -1.0
	actions := make([]llm.Action, 0, len(scores))
	for action := range scores {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	for _, action := range actions {
		if scores[action] > bestScore {
			winner = action
			bestScore = scores[action]
		}
	}

	var winningVotes []memberVote
	for _, v := range votes {
		if v.decision.Decision == winner {
			winningVotes = append(winningVotes, v)
		}
	}
	best := highestConfidence(winningVotes)

	return llm.Decision{
		Decision:   winner,
		Symbol:     best.decision.Symbol,
		Quantity:   best.decision.Quantity,
		Confidence: meanConfidence,
		RiskLevel:  best.decision.RiskLevel,
		Reasoning:  "performance-weighted consensus across member agents",
	}
}

func averageConfidence(votes []memberVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range votes {
		total += v.decision.Confidence
	}
	return total / float64(len(votes))
}

func highestConfidence(votes []memberVote) memberVote {
	best := votes[0]
	for _, v := range votes[1:] {
		if v.decision.Confidence > best.decision.Confidence {
			best = v
		}
	}
	return best
}
