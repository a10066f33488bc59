// Package market resolves a timestamp to a trading-session state.
// Everything here is a pure function of the input time and the
// configured hours; callers inject "now", so no clock mocking is
// needed to test it.
package market

import (
	"fmt"
	"time"

	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// Hours describes one venue's trading day in its local timezone.
// Session boundaries are whole hours; holidays are not modeled.
type Hours struct {
	Location      *time.Location
	PreMarketHour int
	OpenHour      int
	CloseHour     int
	AfterHoursEnd int
}

// NewHours builds venue hours from configuration.
func NewHours(cfg *config.MarketConfig) (Hours, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Hours{}, fmt.Errorf("invalid market timezone %s: %w", cfg.Timezone, err)
	}
	return Hours{
		Location:      loc,
		PreMarketHour: cfg.PreMarketHour,
		OpenHour:      cfg.OpenHour,
		CloseHour:     cfg.CloseHour,
		AfterHoursEnd: cfg.AfterHoursEnd,
	}, nil
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Resolve maps a timestamp to its market session.
func (h Hours) Resolve(now time.Time) models.MarketSession {
	local := now.In(h.Location)
	if !isWeekday(local) {
		return models.SessionClosed
	}

	hour := local.Hour()
	switch {
	case hour >= h.OpenHour && hour < h.CloseHour:
		return models.SessionOpen
	case hour >= h.PreMarketHour && hour < h.OpenHour:
		return models.SessionPreMarket
	case hour >= h.CloseHour && hour < h.AfterHoursEnd:
		return models.SessionAfterHours
	default:
		return models.SessionClosed
	}
}

// IsOpen reports whether the market is in its regular session.
func (h Hours) IsOpen(now time.Time) bool {
	return h.Resolve(now) == models.SessionOpen
}

// NextTransition computes the next open and close times. While open,
// the close is today's; otherwise the open rolls forward past weekends
// to the next trading day.
func (h Hours) NextTransition(now time.Time) (nextOpen, nextClose time.Time) {
	local := now.In(h.Location)

	if h.IsOpen(local) {
		nextClose = h.at(local, h.CloseHour)
		nextOpen = h.at(h.nextTradingDay(local), h.OpenHour)
		return nextOpen, nextClose
	}

	day := local
	// Before today's open on a weekday, today is still the next open.
	if !isWeekday(day) || day.Hour() >= h.OpenHour {
		day = h.nextTradingDay(day)
	}
	nextOpen = h.at(day, h.OpenHour)
	nextClose = h.at(day, h.CloseHour)
	return nextOpen, nextClose
}

// Status bundles the session and transitions for the API surface.
func (h Hours) Status(now time.Time) models.MarketStatus {
	session := h.Resolve(now)
	nextOpen, nextClose := h.NextTransition(now)

	status := models.MarketStatus{
		Session: session,
		IsOpen:  session == models.SessionOpen,
		AsOf:    now,
	}
	status.NextOpen = &nextOpen
	status.NextClose = &nextClose
	return status
}

func (h Hours) at(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, h.Location)
}

func (h Hours) nextTradingDay(t time.Time) time.Time {
	day := t.AddDate(0, 0, 1)
	for !isWeekday(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
