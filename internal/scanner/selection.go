package scanner

import (
	"fmt"
	"sort"
)

// Default AI scores by backtest grade, used when AI review is disabled or
// failed for a candidate.
var gradeDefaultAIScore = map[Grade]float64{
	GradeStrongPass: 70,
	GradeWeakPass:   50,
	GradeFail:       30,
}

// selectFinal is phase 5: blend backtest and AI scores 60/40, derive the
// final grade, mark selections, and keep the top final_select_n
func (s *Scanner) selectFinal(candidates []*Candidate) {
	for _, c := range candidates {
		if c.Backtest == nil {
			c.FinalGrade = FinalFail
			c.SelectionReason = "no backtest result"
			continue
		}

		aiScore := c.AIScore
		if aiScore == 0 {
			aiScore = gradeDefaultAIScore[c.Backtest.Grade]
		}
		c.FinalScore = 0.6*c.Backtest.Score + 0.4*aiScore
		c.FinalGrade = finalGrade(c)

		switch {
		case !c.Backtest.Passed:
			c.SelectionReason = "backtest: " + c.Backtest.Reason
		case c.AIDecision != "" && c.AIDecision != "buy":
			c.SelectionReason = fmt.Sprintf("ai veto: %s", c.AIDecision)
		case c.FinalScore < s.cfg.MinScore:
			c.SelectionReason = fmt.Sprintf("final score %.1f below %.1f", c.FinalScore, s.cfg.MinScore)
		default:
			c.Selected = true
			c.SelectionReason = fmt.Sprintf("%s, final score %.1f", c.FinalGrade, c.FinalScore)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})

	// Cap selections at final_select_n, best first.
	kept := 0
	for _, c := range candidates {
		if !c.Selected {
			continue
		}
		kept++
		if kept > s.cfg.FinalSelectN {
			c.Selected = false
			c.SelectionReason = "over selection cap"
		}
	}
}

// finalGrade folds AI decision, confidence and final score into the
// customer-facing grade
func finalGrade(c *Candidate) FinalGrade {
	if !c.Backtest.Passed {
		return FinalFail
	}
	if c.AIDecision != "" && c.AIDecision != "buy" {
		return FinalHold
	}

	switch {
	case c.FinalScore >= 75 && (c.AIDecision == "" || c.AIConfidence >= 0.7):
		return FinalStrongBuy
	case c.FinalScore >= 60:
		return FinalBuy
	case c.FinalScore >= 50:
		return FinalWeakBuy
	default:
		return FinalHold
	}
}
