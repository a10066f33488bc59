package models

import (
	"time"
)

// MarketSession is the state of the trading venue at a point in time.
type MarketSession string

const (
	SessionOpen       MarketSession = "open"
	SessionClosed     MarketSession = "closed"
	SessionPreMarket  MarketSession = "pre-market"
	SessionAfterHours MarketSession = "after-hours"
)

// MarketStatus combines the current session with the next transitions.
type MarketStatus struct {
	Session   MarketSession `json:"session"`
	IsOpen    bool          `json:"is_open"`
	NextOpen  *time.Time    `json:"next_open,omitempty"`
	NextClose *time.Time    `json:"next_close,omitempty"`
	AsOf      time.Time     `json:"as_of"`
}
