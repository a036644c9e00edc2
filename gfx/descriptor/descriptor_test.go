// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package descriptor_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/gfx/descriptor"
)

func TestFromBindings(t *testing.T) {
	c := qt.New(t)

	sizes := descriptor.FromBindings([]descriptor.Binding{
		{Binding: 0, Type: descriptor.UniformBuffer, Count: 2},
		{Binding: 1, Type: descriptor.StorageBuffer, Count: 1},
	})
	c.Assert(sizes.PoolSizes(), qt.DeepEquals, []descriptor.PoolSize{
		{Type: descriptor.UniformBuffer, Count: 2},
		{Type: descriptor.StorageBuffer, Count: 1},
	})

	var zero int
	for ty := descriptor.Sampler; ty <= descriptor.AccelerationStructure; ty++ {
		if sizes.Count(ty) == 0 {
			zero++
		}
	}
	c.Assert(zero, qt.Equals, 10)
}

func TestFromBindingsSumsPerType(t *testing.T) {
	c := qt.New(t)

	sizes := descriptor.FromBindings([]descriptor.Binding{
		{Binding: 0, Type: descriptor.AccelerationStructure, Count: 1},
		{Binding: 1, Type: descriptor.StorageImage, Count: 1},
		{Binding: 2, Type: descriptor.StorageImage, Count: 3},
		{Binding: 3, Type: descriptor.Sampler, Count: 0},
	})
	c.Assert(sizes.Count(descriptor.StorageImage), qt.Equals, uint32(4))
	c.Assert(sizes.PoolSizes(), qt.DeepEquals, []descriptor.PoolSize{
		{Type: descriptor.StorageImage, Count: 4},
		{Type: descriptor.AccelerationStructure, Count: 1},
	})

	scaled := sizes.Scale(3).Add(descriptor.FromBindings([]descriptor.Binding{{Type: descriptor.Sampler, Count: 1}}))
	c.Assert(scaled.Count(descriptor.StorageImage), qt.Equals, uint32(12))
	c.Assert(scaled.Count(descriptor.Sampler), qt.Equals, uint32(1))
	c.Assert(sizes.Count(descriptor.StorageImage), qt.Equals, uint32(4))
}

func TestEmptyBindings(t *testing.T) {
	c := qt.New(t)
	c.Assert(descriptor.FromBindings(nil).PoolSizes(), qt.HasLen, 0)
}

func TestNativeTypes(t *testing.T) {
	c := qt.New(t)
	c.Assert(descriptor.StorageBuffer.Native(), qt.Equals, uint32(7))
	c.Assert(descriptor.AccelerationStructure.Native(), qt.Equals, uint32(1000150000))
	c.Assert(descriptor.AccelerationStructure.String(), qt.Equals, "AccelerationStructure")
}
