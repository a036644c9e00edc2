// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"math"

	"github.com/cockroachdb/errors"
)

// DeviceAddress is a GPU virtual address into bound buffer memory.
// A valid DeviceAddress is never zero.
type DeviceAddress uint64

// NewDeviceAddress wraps a raw address, rejecting zero.
func NewDeviceAddress(raw uint64) (DeviceAddress, error) {
	if raw == 0 {
		return 0, ErrZeroAddress
	}
	return DeviceAddress(raw), nil
}

// Offset returns the address moved forward by off bytes.
// It fails instead of wrapping around.
func (a DeviceAddress) Offset(off uint64) (DeviceAddress, error) {
	if uint64(a) > math.MaxUint64-off {
		return 0, errors.Wrapf(ErrAddressOverflow, "0x%x + 0x%x", uint64(a), off)
	}
	return a + DeviceAddress(off), nil
}

// IsNull reports whether the address is unset.
func (a DeviceAddress) IsNull() bool {
	return a == 0
}
