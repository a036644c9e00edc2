// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/core"
)

func TestTime(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{UpdatesPerSecond: 50, EventPollDelay: 5})
	defer tm.Stop()

	c.Assert(tm.UpdatesPerSecond(), qt.Equals, 50)
	c.Assert(tm.Interval(), qt.Equals, 20*time.Millisecond)
	select {
	case <-tm.UpdateTicker().C:
	case <-time.After(time.Second):
		c.Fatal("update ticker did not tick")
	}
	c.Assert(tm.Elapsed() > 0, qt.IsTrue)
}

func TestTimeUnlimited(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{})
	defer tm.Stop()
	c.Assert(tm.Interval(), qt.Equals, time.Nanosecond)
}
