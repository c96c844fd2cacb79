package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/analysis"
	"upbit-trading-bot/internal/backtest"
)

// stubPort returns a canned JSON reply
type stubPort struct {
	reply string
	err   error
	calls int
}

func (s *stubPort) Complete(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(extractJSON(s.reply)), out)
}

func buyReply(confidence float64) string {
	return `{"decision":"buy","confidence":` + jsonFloat(confidence) + `,"reason":"breakout with volume"}`
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestReviewParsesDecision(t *testing.T) {
	r := NewReviewer(&stubPort{reply: buyReply(0.8)}, nil)
	rev, err := r.Review(context.Background(), &ReviewRequest{Ticker: "KRW-BTC"})
	require.NoError(t, err)
	require.Equal(t, DecisionBuy, rev.Decision)
	require.InDelta(t, 0.8, rev.Confidence, 1e-9)
	require.False(t, rev.Overridden)
}

func TestReviewRejectsInvalidDecision(t *testing.T) {
	r := NewReviewer(&stubPort{reply: `{"decision":"yolo","confidence":0.5,"reason":"x"}`}, nil)
	_, err := r.Review(context.Background(), &ReviewRequest{Ticker: "KRW-BTC"})
	require.Error(t, err)
}

func TestReviewPropagatesPortError(t *testing.T) {
	r := NewReviewer(&stubPort{err: errors.New("timeout")}, nil)
	_, err := r.Review(context.Background(), &ReviewRequest{Ticker: "KRW-BTC"})
	require.Error(t, err)
}

func TestFlashCrashOverridesBuy(t *testing.T) {
	r := NewReviewer(&stubPort{reply: buyReply(0.9)}, NewValidator(nil))
	req := &ReviewRequest{
		Ticker:     "KRW-BTC",
		FlashCrash: &analysis.FlashCrash{Detected: true, MaxDropPct: -0.08},
	}
	rev, err := r.Review(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, DecisionHold, rev.Decision)
	require.True(t, rev.Overridden)
	require.True(t, rev.FlashCrashRisk)
	require.InDelta(t, 0.6, rev.Confidence, 1e-9)
	require.Contains(t, rev.Reason, "flash_crash_blocks_buy")
}

func TestDivergenceOverrideNeedsHighRisk(t *testing.T) {
	req := &ReviewRequest{
		Ticker:      "KRW-BTC",
		Divergence:  &analysis.Divergence{Type: analysis.DivergenceBearish},
		Correlation: &analysis.Correlation{MarketRisk: analysis.RiskMedium},
	}
	rev := &Review{Decision: DecisionBuy, Confidence: 0.7}
	NewValidator(nil).Apply(rev, req)
	require.Equal(t, DecisionBuy, rev.Decision) // medium risk, no override
	require.True(t, rev.DivergenceRisk)

	req.Correlation.MarketRisk = analysis.RiskHigh
	rev = &Review{Decision: DecisionBuy, Confidence: 0.7}
	NewValidator(nil).Apply(rev, req)
	require.Equal(t, DecisionHold, rev.Decision)
	require.True(t, rev.MarketRiskHigh)
}

func TestResearchOnlyBlocksBuy(t *testing.T) {
	req := &ReviewRequest{
		Ticker: "KRW-BTC",
		Filter: &backtest.FilterResult{ResearchableOnly: true},
	}
	rev := &Review{Decision: DecisionBuy, Confidence: 0.7}
	NewValidator(nil).Apply(rev, req)
	require.Equal(t, DecisionHold, rev.Decision)
}

func TestOverrideNeverTouchesSell(t *testing.T) {
	req := &ReviewRequest{
		Ticker:     "KRW-BTC",
		FlashCrash: &analysis.FlashCrash{Detected: true},
	}
	rev := &Review{Decision: DecisionSell, Confidence: 0.7}
	NewValidator(nil).Apply(rev, req)
	require.Equal(t, DecisionSell, rev.Decision)
	require.False(t, rev.Overridden)
}

func TestLoadRulesYAML(t *testing.T) {
	raw := []byte(`
rules:
  - name: crash_guard
    when_flash_crash: true
    from_decision: buy
    to_decision: hold
    confidence_penalty: 0.5
`)
	rules, err := LoadRules(raw)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "crash_guard", rules[0].Name)
	require.Equal(t, DecisionHold, rules[0].ToDecision)

	_, err = LoadRules([]byte("rules: []"))
	require.Error(t, err)
}

func TestExtractJSONFromFencedReply(t *testing.T) {
	fenced := "Here you go:\n```json\n{\"decision\":\"hold\",\"confidence\":0.4,\"reason\":\"flat\"}\n```"
	raw := extractJSON(fenced)
	var rev Review
	require.NoError(t, json.Unmarshal([]byte(raw), &rev))
	require.Equal(t, DecisionHold, rev.Decision)
}
