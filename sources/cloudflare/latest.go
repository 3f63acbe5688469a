package cloudflare

import (
	"slices"
)

// latestBy returns the candidate with the newest creation timestamp, or nil
// when there are none. Candidates with equal or unparseable timestamps keep
// their response order.
func latestBy[T any](candidates []T, created func(*T) string) *T {
	if len(candidates) == 0 {
		return nil
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return ParseTimestamp(created(&b)).Compare(ParseTimestamp(created(&a)))
	})

	return &sorted[0]
}
