package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-06-02 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
}

func TestNextAlarmTrigger_OneShot(t *testing.T) {
	t.Run("time still ahead today", func(t *testing.T) {
		now := monday(7, 0)
		got := NextAlarmTrigger(8, 0, nil, now)
		assert.Equal(t, monday(8, 0), got)
	})

	t.Run("time already passed rolls to tomorrow", func(t *testing.T) {
		now := monday(9, 0)
		got := NextAlarmTrigger(8, 0, nil, now)
		assert.Equal(t, monday(8, 0).AddDate(0, 0, 1), got)
	})

	t.Run("exact alarm minute counts as passed", func(t *testing.T) {
		now := monday(8, 0)
		got := NextAlarmTrigger(8, 0, nil, now)
		assert.Equal(t, monday(8, 0).AddDate(0, 0, 1), got)
	})
}

func TestNextAlarmTrigger_Weekly(t *testing.T) {
	days := []time.Weekday{time.Monday, time.Wednesday}

	t.Run("next enabled day", func(t *testing.T) {
		// Tuesday 09:00 -> Wednesday 08:00
		now := monday(9, 0).AddDate(0, 0, 1)
		got := NextAlarmTrigger(8, 0, days, now)
		assert.Equal(t, monday(8, 0).AddDate(0, 0, 2), got)
		assert.Equal(t, time.Wednesday, got.Weekday())
	})

	t.Run("today counts when time not passed", func(t *testing.T) {
		now := monday(7, 0)
		got := NextAlarmTrigger(8, 0, days, now)
		assert.Equal(t, monday(8, 0), got)
	})

	t.Run("today skips to next week when time passed", func(t *testing.T) {
		now := monday(9, 0)
		got := NextAlarmTrigger(8, 0, []time.Weekday{time.Monday}, now)
		assert.Equal(t, monday(8, 0).AddDate(0, 0, 7), got)
	})

	t.Run("full week behaves like daily", func(t *testing.T) {
		all := []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}
		now := monday(9, 0)
		got := NextAlarmTrigger(8, 0, all, now)
		assert.Equal(t, monday(8, 0).AddDate(0, 0, 1), got)
	})

	t.Run("preserves location", func(t *testing.T) {
		loc, err := time.LoadLocation("Europe/Berlin")
		require.NoError(t, err)
		now := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
		got := NextAlarmTrigger(8, 0, days, now)
		assert.Equal(t, loc, got.Location())
	})
}

func TestNextSnoozeTrigger(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 42, 123456789, time.UTC)
	got := NextSnoozeTrigger(now, 10)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 10, 0, 0, time.UTC), got)
}

func TestRemainingUntil(t *testing.T) {
	now := monday(8, 0)

	t.Run("decomposes days hours minutes", func(t *testing.T) {
		target := now.Add(49*time.Hour + 30*time.Minute)
		got := RemainingUntil(now, target)
		assert.Equal(t, Remaining{Days: 2, Hours: 1, Minutes: 30}, got)
	})

	t.Run("past target is due", func(t *testing.T) {
		got := RemainingUntil(now, now.Add(-time.Minute))
		assert.True(t, got.Due)
	})

	t.Run("equal target is due", func(t *testing.T) {
		got := RemainingUntil(now, now)
		assert.True(t, got.Due)
	})
}
