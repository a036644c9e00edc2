// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"math"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/gfx"
)

func TestBufferInfoValid(t *testing.T) {
	c := qt.New(t)

	for shift := uint(0); shift < 64; shift++ {
		mask := uint64(1)<<shift - 1
		for _, size := range []uint64{0, 1, 255, 4096, math.MaxUint64 - mask} {
			info := gfx.BufferInfo{Align: mask, Size: size}
			c.Assert(info.IsValid(), qt.IsTrue, qt.Commentf("align mask 0x%x size %d", mask, size))
			c.Assert(info.AlignedSize()&mask, qt.Equals, uint64(0))
			c.Assert(info.AlignedSize() >= size, qt.IsTrue)
		}
	}
}

func TestBufferInfoInvalid(t *testing.T) {
	c := qt.New(t)

	tests := []gfx.BufferInfo{
		{Align: 2, Size: 16},
		{Align: 5, Size: 16},
		{Align: 0xfe, Size: 16},
		{Align: math.MaxUint64, Size: 0},
		{Align: 0xff, Size: math.MaxUint64},
		{Align: 0xff, Size: math.MaxUint64 - 0xfe},
	}
	for _, info := range tests {
		c.Assert(info.IsValid(), qt.IsFalse, qt.Commentf("%+v", info))
	}
}

func TestBufferInfoAlignedSize(t *testing.T) {
	c := qt.New(t)

	c.Assert(gfx.BufferInfo{Align: 0xff, Size: 1}.AlignedSize(), qt.Equals, uint64(256))
	c.Assert(gfx.BufferInfo{Align: 0xff, Size: 256}.AlignedSize(), qt.Equals, uint64(256))
	c.Assert(gfx.BufferInfo{Align: 0, Size: 13}.AlignedSize(), qt.Equals, uint64(13))
}
