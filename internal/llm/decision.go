package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Action is the trading action an agent's decision carries.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// RiskLevel is the agent's self-reported qualitative risk band for a
// decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Decision is the structured trade decision an agent's LLM call must
// produce.
type Decision struct {
	Decision   Action    `json:"decision"`
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	Confidence float64   `json:"confidence"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Reasoning  string    `json:"reasoning"`
}

var codeBlockPattern = regexp.MustCompile(`(?s)^` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```" + `$`)

// stripCodeBlock removes a surrounding markdown code fence, if present.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockPattern.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractJSONObject scans s for its outermost {...} span by brace
// depth, tolerating prose before/after the JSON the way an LLM often
// wraps a structured answer in explanation.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, braces don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseDecision extracts and unmarshals a Decision from an LLM's raw
// response text, tolerating a markdown code fence and prose wrapped
// around the JSON object.
func ParseDecision(raw string) (Decision, error) {
	candidate := stripCodeBlock(raw)

	var dec Decision
	if err := json.Unmarshal([]byte(candidate), &dec); err == nil {
		return dec, nil
	}

	object, ok := extractJSONObject(raw)
	if !ok {
		return Decision{}, fmt.Errorf("llm: no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(object), &dec); err != nil {
		return Decision{}, fmt.Errorf("llm: parse extracted JSON: %w", err)
	}
	return dec, nil
}

// Validate checks a parsed Decision against the schema's hard
// constraints: a BUY/SELL must name a symbol and a positive quantity.
func (d Decision) Validate() error {
	switch d.Decision {
	case ActionBuy, ActionSell:
		if d.Symbol == "" {
			return fmt.Errorf("llm: %s decision missing symbol", d.Decision)
		}
		if d.Quantity <= 0 {
			return fmt.Errorf("llm: %s decision has non-positive quantity %v", d.Decision, d.Quantity)
		}
	case ActionHold:
		// no additional constraints
	default:
		return fmt.Errorf("llm: unrecognized decision action %q", d.Decision)
	}
	return nil
}
