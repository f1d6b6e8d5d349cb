package domain

import (
	"fmt"
	"strings"
)

// FilterLevel names a minimum relevance threshold applied before summarization.
type FilterLevel string

const (
	FilterNone FilterLevel = "none"
	FilterLow  FilterLevel = "low"
	FilterMid  FilterLevel = "mid"
	FilterHigh FilterLevel = "high"
)

// ParseFilterLevel validates a configured level. The empty string means no filtering.
func ParseFilterLevel(value string) (FilterLevel, error) {
	switch level := FilterLevel(strings.ToLower(strings.TrimSpace(value))); level {
	case "":
		return FilterNone, nil
	case FilterNone, FilterLow, FilterMid, FilterHigh:
		return level, nil
	default:
		return "", fmt.Errorf("unknown filter level %q", value)
	}
}

// Threshold returns the inclusive minimum score for the level; ok is false when
// the level performs no filtering.
func (l FilterLevel) Threshold() (min int, ok bool) {
	switch l {
	case FilterLow:
		return 0, true
	case FilterMid:
		return 1, true
	case FilterHigh:
		return 2, true
	default:
		return 0, false
	}
}

// Apply returns the reviews whose score meets the level's threshold, preserving
// their relative order. FilterNone returns the input unchanged.
func (l FilterLevel) Apply(reviews []Review) []Review {
	min, ok := l.Threshold()
	if !ok {
		return reviews
	}

	kept := make([]Review, 0, len(reviews))
	for _, review := range reviews {
		if review.Score >= min {
			kept = append(kept, review)
		}
	}
	return kept
}
