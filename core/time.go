// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.UpdatesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / time.Duration(cfg.UpdatesPerSecond)
	}

	pollDelay := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if pollDelay <= 0 {
		pollDelay = time.Millisecond
	}

	return &Time{
		ups:            cfg.UpdatesPerSecond,
		interval:       interval,
		updateTicker:   time.NewTicker(interval),
		eventPollDelay: pollDelay,
		eventTicker:    time.NewTicker(pollDelay),
		started:        time.Now(),
	}
}

// Time contains all the time services and tickers
type Time struct {
	ups          int
	interval     time.Duration
	updateTicker *time.Ticker

	eventPollDelay time.Duration
	eventTicker    *time.Ticker

	started time.Time
}

// UpdatesPerSecond gets the set updates per second
func (t *Time) UpdatesPerSecond() int {
	return t.ups
}

// Interval is the time between two updates
func (t *Time) Interval() time.Duration {
	return t.interval
}

// UpdateTicker gets the ticker scene updates are driven by
func (t *Time) UpdateTicker() *time.Ticker {
	return t.updateTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Elapsed returns the time since the service was created
func (t *Time) Elapsed() time.Duration {
	return time.Since(t.started)
}

// Stop stops both tickers
func (t *Time) Stop() {
	t.updateTicker.Stop()
	t.eventTicker.Stop()
}
