// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds what every tracer binary shares: configuration,
// logging and the update clock.
package core

import "fmt"

// Version of the tracer, reported to the driver as the application
// and engine version.
const (
	VersionMajor = 0
	VersionMinor = 3
	VersionPatch = 0
)

// EngineName is reported to the driver along with the application name.
const EngineName = "tracer"

// Version formats the version numbers.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
