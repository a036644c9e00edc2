// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"bytes"
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/core"
)

func TestNewLoggerJSON(t *testing.T) {
	c := qt.New(t)
	var out bytes.Buffer
	logger, err := core.NewLogger(core.LogConfiguration{Level: "debug", Format: "json", Output: &out})
	c.Assert(err, qt.IsNil)
	c.Assert(logger.Level, qt.Equals, logrus.DebugLevel)

	logger.WithField("entries", 2).Debug("built")
	var entry map[string]interface{}
	c.Assert(json.Unmarshal(out.Bytes(), &entry), qt.IsNil)
	c.Assert(entry["msg"], qt.Equals, "built")
	c.Assert(entry["entries"], qt.Equals, float64(2))
}

func TestNewLoggerFiltersLevel(t *testing.T) {
	c := qt.New(t)
	var out bytes.Buffer
	logger, err := core.NewLogger(core.LogConfiguration{Level: "warn", Output: &out})
	c.Assert(err, qt.IsNil)
	logger.Info("hidden")
	c.Assert(out.Len(), qt.Equals, 0)
	logger.Warn("shown")
	c.Assert(out.String(), qt.Contains, "shown")
}

func TestNewLoggerErrors(t *testing.T) {
	c := qt.New(t)
	_, err := core.NewLogger(core.LogConfiguration{Level: "loud"})
	c.Assert(err, qt.ErrorMatches, `log level: .*`)
	_, err = core.NewLogger(core.LogConfiguration{Level: "info", Format: "xml"})
	c.Assert(err, qt.ErrorMatches, `unknown log format "xml"`)
}
