package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStalenessReasonNewEntity(t *testing.T) {
	now := time.Now().In(referenceZone)
	checked := now.Add(-time.Hour)

	// a new insert is always on the work-list, even with a recent stamp
	reason, needed := stalenessReason(true, &checked, now, 14)
	assert.True(t, needed)
	assert.Equal(t, ReasonNew, reason)
}

func TestStalenessReasonNeverChecked(t *testing.T) {
	now := time.Now().In(referenceZone)

	reason, needed := stalenessReason(false, nil, now, 14)
	assert.True(t, needed)
	assert.Equal(t, ReasonNeverChecked, reason)
}

func TestStalenessReasonThreshold(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, referenceZone)

	testCases := []struct {
		name     string
		ago      time.Duration
		expected bool
	}{
		{"checked an hour ago", time.Hour, false},
		{"checked 13 days ago", 13 * 24 * time.Hour, false},
		{"checked exactly at threshold", 14 * 24 * time.Hour, false},
		{"one hour past threshold", 14*24*time.Hour + time.Hour, false},
		{"one full day past threshold", 15 * 24 * time.Hour, true},
		{"checked a month ago", 30 * 24 * time.Hour, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			last := now.Add(-tc.ago)
			reason, needed := stalenessReason(false, &last, now, 14)
			assert.Equal(t, tc.expected, needed)
			if needed {
				assert.Equal(t, ReasonStale, reason)
			}
		})
	}
}

func TestStalenessReasonMonotonic(t *testing.T) {
	// growing the threshold never turns an excluded entity into an
	// included one
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, referenceZone)
	last := now.Add(-20 * 24 * time.Hour)

	_, neededAt14 := stalenessReason(false, &last, now, 14)
	_, neededAt30 := stalenessReason(false, &last, now, 30)
	assert.True(t, neededAt14)
	assert.False(t, neededAt30)
}

func TestStalenessReasonOtherZoneTimestamp(t *testing.T) {
	// a UTC timestamp from the database compares correctly against the
	// reference zone
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, referenceZone)
	last := now.Add(-16 * 24 * time.Hour).UTC()

	reason, needed := stalenessReason(false, &last, now, 14)
	assert.True(t, needed)
	assert.Equal(t, ReasonStale, reason)
}

func TestNullableArgumentsMapNilToSQLNull(t *testing.T) {
	assert.Nil(t, decimalOrNil(nil))
	assert.Nil(t, floatOrNil(nil))

	d := decimal.NewFromInt(42)
	assert.Equal(t, d, decimalOrNil(&d))

	f := 23.5
	assert.Equal(t, f, floatOrNil(&f))
}
