package cronsched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleRejectsInvalidSpec(t *testing.T) {
	_, err := ParseSchedule("not a cron spec")
	assert.Error(t, err)
}

func TestParseScheduleNextIsStrictlyAfterNow(t *testing.T) {
	s, err := ParseSchedule("0 0 * * *") // midnight daily
	require.NoError(t, err)

	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	next := s.Next(now)
	require.False(t, next.IsZero())
	assert.True(t, next.After(now))
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestParseScheduleEveryMinute(t *testing.T) {
	s, err := ParseSchedule("* * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	next := s.Next(now)
	assert.Equal(t, time.Date(2026, 7, 31, 10, 31, 0, 0, time.UTC), next)
}

func TestScheduleStringReturnsOriginalExpr(t *testing.T) {
	s, err := ParseSchedule("*/5 * * * *")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", s.String())
}
