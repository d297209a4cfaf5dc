package llm

import "testing"

func TestParseDecision_PlainJSON(t *testing.T) {
	raw := `{"decision":"BUY","symbol":"AAPL","quantity":10,"confidence":80,"risk_level":"MEDIUM","reasoning":"strong momentum"}`

	dec, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Decision != ActionBuy || dec.Symbol != "AAPL" || dec.Quantity != 10 {
		t.Errorf("ParseDecision = %+v, want BUY AAPL qty=10", dec)
	}
}

func TestParseDecision_MarkdownCodeFence(t *testing.T) {
	raw := "```json\n{\"decision\":\"SELL\",\"symbol\":\"MSFT\",\"quantity\":5,\"confidence\":70,\"risk_level\":\"LOW\",\"reasoning\":\"target hit\"}\n```"

	dec, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Decision != ActionSell || dec.Symbol != "MSFT" {
		t.Errorf("ParseDecision = %+v, want SELL MSFT", dec)
	}
}

func TestParseDecision_ProseWrappedJSON(t *testing.T) {
	raw := `Based on my analysis, here is my decision: {"decision":"HOLD","symbol":"","quantity":0,"confidence":40,"risk_level":"MEDIUM","reasoning":"no clear edge"} Let me know if you need more detail.`

	dec, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Decision != ActionHold {
		t.Errorf("ParseDecision = %+v, want HOLD", dec)
	}
}

func TestParseDecision_NestedBraces(t *testing.T) {
	raw := `{"decision":"BUY","symbol":"AAPL","quantity":1,"confidence":90,"risk_level":"LOW","reasoning":"nested {braces} in reasoning should not break extraction"}`

	dec, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if dec.Reasoning == "" {
		t.Error("expected reasoning to be preserved")
	}
}

func TestParseDecision_NoJSONErrors(t *testing.T) {
	if _, err := ParseDecision("I cannot make a decision right now."); err == nil {
		t.Error("expected an error when no JSON object is present")
	}
}

func TestDecision_Validate(t *testing.T) {
	cases := []struct {
		name    string
		dec     Decision
		wantErr bool
	}{
		{"valid buy", Decision{Decision: ActionBuy, Symbol: "AAPL", Quantity: 10}, false},
		{"buy missing symbol", Decision{Decision: ActionBuy, Quantity: 10}, true},
		{"buy zero quantity", Decision{Decision: ActionBuy, Symbol: "AAPL", Quantity: 0}, true},
		{"valid hold", Decision{Decision: ActionHold}, false},
		{"unrecognized action", Decision{Decision: "WAIT"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.dec.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
