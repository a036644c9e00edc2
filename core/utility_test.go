// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/core"
)

func TestSliceUint32(t *testing.T) {
	c := qt.New(t)
	data := make([]byte, 10)
	binary.LittleEndian.PutUint32(data, 0x07230203)
	binary.LittleEndian.PutUint32(data[4:], 7)

	words := core.SliceUint32(data)
	c.Assert(words, qt.DeepEquals, []uint32{0x07230203, 7})
	c.Assert(core.SliceUint32(data[:3]), qt.IsNil)
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func TestVersion(t *testing.T) {
	qt.Assert(t, core.Version(), qt.Equals, "0.3.0")
}
