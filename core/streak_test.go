package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreak_Record(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2026, time.March, d, h, 0, 0, 0, time.UTC) }

	tests := []struct {
		name        string
		activity    []time.Time
		wantCurrent int
		wantLongest int
		wantLast    time.Time
	}{
		{name: "first activity", activity: []time.Time{day(1, 9)}, wantCurrent: 1, wantLongest: 1, wantLast: day(1, 9)},
		{name: "same day counts once", activity: []time.Time{day(1, 9), day(1, 18)}, wantCurrent: 1, wantLongest: 1, wantLast: day(1, 18)},
		{name: "consecutive days", activity: []time.Time{day(1, 23), day(2, 1), day(3, 12)}, wantCurrent: 3, wantLongest: 3, wantLast: day(3, 12)},
		{name: "gap restarts", activity: []time.Time{day(1, 9), day(2, 9), day(4, 9)}, wantCurrent: 1, wantLongest: 2, wantLast: day(4, 9)},
		{name: "older activity is ignored", activity: []time.Time{day(5, 9), day(3, 9)}, wantCurrent: 1, wantLongest: 1, wantLast: day(5, 9)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var s Streak
			for _, now := range tt.activity {
				s.Record(now)
			}
			assert.Equal(t, tt.wantCurrent, s.Current)
			assert.Equal(t, tt.wantLongest, s.Longest)
			if assert.NotNil(t, s.LastActivityDate) {
				assert.True(t, tt.wantLast.Equal(*s.LastActivityDate))
			}
		})
	}
}

func TestCleanStrings(t *testing.T) {
	assert.Equal(t, []string{"go", "k8s"}, CleanStrings([]string{" Go", "", "K8S ", "go", "  "}, true))
	assert.Equal(t, []string{"Go", "go"}, CleanStrings([]string{"Go", "go"}))
	assert.Equal(t, []string{}, CleanStrings(nil))
}
