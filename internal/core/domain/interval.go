package domain

import (
	"fmt"
	"sort"
)

// Interval is a half-open [Start, End) range belonging to one record of a
// validation group.
type Interval struct {
	ID    string `json:"id"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// Overlap reports two neighbouring intervals that collide after sorting by
// start.
type Overlap struct {
	Records [2]string `json:"records"`
	Message string    `json:"message"`
}

// DetectOverlaps sorts the intervals by start and flags each adjacent pair
// where the earlier interval ends after the later one begins. Empty and fully
// disjoint inputs produce no overlaps; a single interval never does.
func DetectOverlaps(intervals []Interval) []Overlap {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	overlaps := make([]Overlap, 0)
	for i := 0; i+1 < len(sorted); i++ {
		current, next := sorted[i], sorted[i+1]
		if current.End > next.Start {
			overlaps = append(overlaps, Overlap{
				Records: [2]string{current.ID, next.ID},
				Message: fmt.Sprintf("Solapamiento entre %s y %s", current.ID, next.ID),
			})
		}
	}
	return overlaps
}
