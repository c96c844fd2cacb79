package market

import (
	"fmt"
	"sort"
	"time"
)

// IssueKind classifies a data-quality issue found by the validator
type IssueKind string

const (
	IssueInvertedHighLow IssueKind = "inverted_high_low"
	IssueNegativeVolume  IssueKind = "negative_volume"
	IssueOutOfOrder      IssueKind = "out_of_order"
	IssueDuplicate       IssueKind = "duplicate_timestamp"
	IssueLargeGap        IssueKind = "large_gap"
	IssueBadRange        IssueKind = "open_close_outside_range"
	IssueEmpty           IssueKind = "empty_series"
)

// Issue is one data-quality finding. Corrected issues are safe to ignore;
// uncorrected ones should downgrade the ticker.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Index     int       `json:"index"`
	Corrected bool      `json:"corrected"`
	Detail    string    `json:"detail"`
}

// MaxGapIntervals is the largest tolerated hole between consecutive candles
// before the series is flagged.
const MaxGapIntervals = 3

// Validate repairs a series in place where safe and reports every issue found.
// Repairs: swap inverted high/low, zero negative volumes, clamp open/close
// into [low, high], sort by timestamp, drop duplicate timestamps. Gaps larger
// than MaxGapIntervals are reported but not repaired. Validate is idempotent:
// a second pass over repaired data finds nothing new to correct.
func Validate(s *Series) []Issue {
	var issues []Issue

	if len(s.Candles) == 0 {
		return []Issue{{Kind: IssueEmpty, Index: -1, Detail: "no candles"}}
	}

	if !sort.SliceIsSorted(s.Candles, func(i, j int) bool {
		return s.Candles[i].Timestamp.Before(s.Candles[j].Timestamp)
	}) {
		sort.SliceStable(s.Candles, func(i, j int) bool {
			return s.Candles[i].Timestamp.Before(s.Candles[j].Timestamp)
		})
		issues = append(issues, Issue{Kind: IssueOutOfOrder, Index: -1, Corrected: true, Detail: "series re-sorted by timestamp"})
	}

	// Drop duplicate timestamps, keeping the last occurrence.
	deduped := s.Candles[:0]
	for i, c := range s.Candles {
		if i+1 < len(s.Candles) && c.Timestamp.Equal(s.Candles[i+1].Timestamp) {
			issues = append(issues, Issue{Kind: IssueDuplicate, Index: i, Corrected: true,
				Detail: fmt.Sprintf("duplicate candle at %s dropped", c.Timestamp.Format("2006-01-02T15:04"))})
			continue
		}
		deduped = append(deduped, c)
	}
	s.Candles = deduped

	step := s.Interval.Duration()
	for i := range s.Candles {
		c := &s.Candles[i]

		if c.High < c.Low {
			c.High, c.Low = c.Low, c.High
			issues = append(issues, Issue{Kind: IssueInvertedHighLow, Index: i, Corrected: true,
				Detail: "high < low, swapped"})
		}
		if c.Volume < 0 {
			c.Volume = 0
			issues = append(issues, Issue{Kind: IssueNegativeVolume, Index: i, Corrected: true,
				Detail: "negative volume set to 0"})
		}
		if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			c.Open = clamp(c.Open, c.Low, c.High)
			c.Close = clamp(c.Close, c.Low, c.High)
			issues = append(issues, Issue{Kind: IssueBadRange, Index: i, Corrected: true,
				Detail: "open/close clamped into [low, high]"})
		}

		if i > 0 {
			gap := c.Timestamp.Sub(s.Candles[i-1].Timestamp)
			if gap > time.Duration(MaxGapIntervals)*step {
				issues = append(issues, Issue{Kind: IssueLargeGap, Index: i,
					Detail: fmt.Sprintf("gap of %s exceeds %d intervals", gap, MaxGapIntervals)})
			}
		}
	}

	return issues
}

// Uncorrectable reports whether any issue could not be repaired in place
func Uncorrectable(issues []Issue) bool {
	for _, is := range issues {
		if !is.Corrected && is.Kind != IssueLargeGap {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
