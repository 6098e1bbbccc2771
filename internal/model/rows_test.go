package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The presence upsert compares precision classes numerically, so the
// constant ordering is load-bearing: coarse < medium < high.
func TestPrecisionClassOrdering(t *testing.T) {
	assert.True(t, PrecisionCoarse < PrecisionMedium)
	assert.True(t, PrecisionMedium < PrecisionHigh)
}

func TestPrecisionClassStringRoundTrip(t *testing.T) {
	for _, p := range []PrecisionClass{PrecisionCoarse, PrecisionMedium, PrecisionHigh} {
		assert.Equal(t, p, ParsePrecisionClass(p.String()))
	}
	assert.Equal(t, PrecisionCoarse, ParsePrecisionClass("garbage"))
}

// presenceMerge models the presence table's conflict policy in Go:
// geo dimensions follow the strictly-better precision, first_event_ts
// takes the minimum regardless. Folding any permutation of the same
// pings must land on the same row state, which is what makes redelivery
// and reordering safe.
func TestPresenceMergeIsCommutative(t *testing.T) {
	base := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	type ping struct {
		precision PrecisionClass
		h3r9      string
		ts        time.Time
	}
	pings := []ping{
		{PrecisionCoarse, "cell-coarse", base.Add(5 * time.Minute)},
		{PrecisionHigh, "cell-high", base.Add(20 * time.Minute)},
		{PrecisionMedium, "cell-medium", base.Add(1 * time.Minute)},
	}

	merge := func(order []int) ping {
		row := pings[order[0]]
		for _, i := range order[1:] {
			in := pings[i]
			if in.precision > row.precision {
				row.precision = in.precision
				row.h3r9 = in.h3r9
			}
			if in.ts.Before(row.ts) {
				row.ts = in.ts
			}
		}
		return row
	}

	want := ping{PrecisionHigh, "cell-high", base.Add(1 * time.Minute)}
	assert.Equal(t, want, merge([]int{0, 1, 2}))
	assert.Equal(t, want, merge([]int{2, 1, 0}))
	assert.Equal(t, want, merge([]int{1, 0, 2}))
	assert.Equal(t, want, merge([]int{2, 0, 1}))
}
