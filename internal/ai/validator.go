package ai

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"upbit-trading-bot/internal/analysis"
)

// Rule is one hard override applied to the model's verdict. All enabled
// when_* conditions must hold for the rule to fire.
type Rule struct {
	Name                  string   `yaml:"name" json:"name"`
	WhenFlashCrash        bool     `yaml:"when_flash_crash" json:"when_flash_crash"`
	WhenBearishDivergence bool     `yaml:"when_bearish_divergence" json:"when_bearish_divergence"`
	WhenHighMarketRisk    bool     `yaml:"when_high_market_risk" json:"when_high_market_risk"`
	WhenResearchOnly      bool     `yaml:"when_research_only" json:"when_research_only"`
	FromDecision          Decision `yaml:"from_decision" json:"from_decision"`
	ToDecision            Decision `yaml:"to_decision" json:"to_decision"`
	ConfidencePenalty     float64  `yaml:"confidence_penalty" json:"confidence_penalty"`
}

// Validator applies hard rules after the AI answers. The AI advises, the
// rules decide.
type Validator struct {
	rules []Rule
}

// DefaultRules covers the safety overrides shipped by default
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:              "flash_crash_blocks_buy",
			WhenFlashCrash:    true,
			FromDecision:      DecisionBuy,
			ToDecision:        DecisionHold,
			ConfidencePenalty: 0.3,
		},
		{
			Name:                  "divergence_in_risky_market_blocks_buy",
			WhenBearishDivergence: true,
			WhenHighMarketRisk:    true,
			FromDecision:          DecisionBuy,
			ToDecision:            DecisionHold,
			ConfidencePenalty:     0.2,
		},
		{
			Name:              "research_only_blocks_buy",
			WhenResearchOnly:  true,
			FromDecision:      DecisionBuy,
			ToDecision:        DecisionHold,
			ConfidencePenalty: 0.2,
		},
	}
}

// NewValidator creates a validator; nil rules means the defaults
func NewValidator(rules []Rule) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// LoadRules parses a YAML rule table
func LoadRules(raw []byte) ([]Rule, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ai: parse rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("ai: rule table is empty")
	}
	return doc.Rules, nil
}

// Apply mutates the review in place when any rule fires, annotating the
// reason and lowering confidence
func (v *Validator) Apply(rev *Review, req *ReviewRequest) {
	for _, rule := range v.rules {
		if rev.Decision != rule.FromDecision {
			continue
		}
		if !rule.matches(req) {
			continue
		}
		rev.Decision = rule.ToDecision
		rev.Overridden = true
		rev.Reason = fmt.Sprintf("%s [overridden by %s]", rev.Reason, rule.Name)
		rev.Confidence -= rule.ConfidencePenalty
		if rev.Confidence < 0 {
			rev.Confidence = 0
		}
		rev.RejectionReasons = append(rev.RejectionReasons, rule.Name)
	}

	// Flags reflect what the detectors saw regardless of the model's claim.
	if req.FlashCrash != nil && req.FlashCrash.Detected {
		rev.FlashCrashRisk = true
	}
	if req.Divergence != nil && req.Divergence.Type == analysis.DivergenceBearish {
		rev.DivergenceRisk = true
	}
	if req.Correlation != nil && req.Correlation.MarketRisk == analysis.RiskHigh {
		rev.MarketRiskHigh = true
	}
}

func (r Rule) matches(req *ReviewRequest) bool {
	if r.WhenFlashCrash && (req.FlashCrash == nil || !req.FlashCrash.Detected) {
		return false
	}
	if r.WhenBearishDivergence && (req.Divergence == nil || req.Divergence.Type != analysis.DivergenceBearish) {
		return false
	}
	if r.WhenHighMarketRisk && (req.Correlation == nil || req.Correlation.MarketRisk != analysis.RiskHigh) {
		return false
	}
	if r.WhenResearchOnly && (req.Filter == nil || !req.Filter.ResearchableOnly) {
		return false
	}
	return true
}
