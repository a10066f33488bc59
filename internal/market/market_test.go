package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

func testHours(t *testing.T) Hours {
	t.Helper()
	hours, err := NewHours(&config.MarketConfig{
		Timezone:      "Asia/Kolkata",
		PreMarketHour: 8,
		OpenHour:      9,
		CloseHour:     16,
		AfterHoursEnd: 18,
	})
	require.NoError(t, err)
	return hours
}

// at builds a local timestamp; 2024-03-12 is a Tuesday.
func at(t *testing.T, hours Hours, day, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2024, 3, day, hour, minute, 0, 0, hours.Location)
}

func TestResolveSessions(t *testing.T) {
	hours := testHours(t)

	tests := []struct {
		name string
		now  time.Time
		want models.MarketSession
	}{
		{"weekday mid-session", at(t, hours, 12, 10, 0), models.SessionOpen},
		{"weekday at open", at(t, hours, 12, 9, 0), models.SessionOpen},
		{"weekday last open hour", at(t, hours, 12, 15, 59), models.SessionOpen},
		{"weekday at close", at(t, hours, 12, 16, 0), models.SessionAfterHours},
		{"weekday pre-market", at(t, hours, 12, 8, 30), models.SessionPreMarket},
		{"weekday after-hours end", at(t, hours, 12, 18, 0), models.SessionClosed},
		{"weekday before pre-market", at(t, hours, 12, 6, 0), models.SessionClosed},
		{"saturday mid-day", at(t, hours, 16, 10, 0), models.SessionClosed},
		{"sunday mid-day", at(t, hours, 17, 10, 0), models.SessionClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, hours.Resolve(tc.now))
		})
	}
}

func TestIsOpenOnlyDuringRegularSession(t *testing.T) {
	hours := testHours(t)

	assert.True(t, hours.IsOpen(at(t, hours, 12, 10, 0)))
	assert.False(t, hours.IsOpen(at(t, hours, 12, 8, 30)))
	assert.False(t, hours.IsOpen(at(t, hours, 12, 17, 0)))
	assert.False(t, hours.IsOpen(at(t, hours, 16, 10, 0)))
}

func TestNextTransitionWhileOpen(t *testing.T) {
	hours := testHours(t)

	nextOpen, nextClose := hours.NextTransition(at(t, hours, 12, 10, 0))

	assert.Equal(t, at(t, hours, 12, 16, 0), nextClose)
	assert.Equal(t, at(t, hours, 13, 9, 0), nextOpen)
}

func TestNextTransitionAfterClose(t *testing.T) {
	hours := testHours(t)

	// Tuesday evening rolls to Wednesday.
	nextOpen, nextClose := hours.NextTransition(at(t, hours, 12, 18, 0))

	assert.Equal(t, at(t, hours, 13, 9, 0), nextOpen)
	assert.Equal(t, at(t, hours, 13, 16, 0), nextClose)
}

func TestNextTransitionBeforeTodaysOpen(t *testing.T) {
	hours := testHours(t)

	nextOpen, _ := hours.NextTransition(at(t, hours, 12, 7, 0))
	assert.Equal(t, at(t, hours, 12, 9, 0), nextOpen)
}

func TestNextTransitionRollsOverWeekend(t *testing.T) {
	hours := testHours(t)

	// Friday evening and Saturday both land on Monday's open.
	monday := at(t, hours, 18, 9, 0)

	nextOpen, _ := hours.NextTransition(at(t, hours, 15, 17, 0))
	assert.Equal(t, monday, nextOpen)

	nextOpen, _ = hours.NextTransition(at(t, hours, 16, 10, 0))
	assert.Equal(t, monday, nextOpen)
}

func TestStatusBundlesTransitions(t *testing.T) {
	hours := testHours(t)
	now := at(t, hours, 12, 10, 0)

	status := hours.Status(now)

	assert.Equal(t, models.SessionOpen, status.Session)
	assert.True(t, status.IsOpen)
	require.NotNil(t, status.NextClose)
	assert.Equal(t, at(t, hours, 12, 16, 0), *status.NextClose)
	require.NotNil(t, status.NextOpen)
	assert.Equal(t, now, status.AsOf)
}

func TestNewHoursRejectsBadTimezone(t *testing.T) {
	_, err := NewHours(&config.MarketConfig{Timezone: "Not/AZone"})
	assert.Error(t, err)
}
