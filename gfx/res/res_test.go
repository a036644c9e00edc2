// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/gfxtest"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/gfx/res"
)

func newAllocator(dev *gfxtest.Device) *mem.Allocator {
	return mem.NewAllocator(dev, mem.WithPageSize(1<<20))
}

func TestStoreLoadRoundTrip(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)

	buf, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryHostAccess)
	c.Assert(err, qt.IsNil)

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i * 7)
	}
	c.Assert(buf.Store(data), qt.IsNil)

	got := make([]byte, 64)
	c.Assert(buf.Load(got), qt.IsNil)
	c.Assert(got, qt.DeepEquals, data)

	c.Assert(buf.StoreAt(60, []byte{1, 2, 3, 4}), qt.IsNil)
	c.Assert(buf.Load(got), qt.IsNil)
	c.Assert(got[60:], qt.DeepEquals, []byte{1, 2, 3, 4})

	c.Assert(buf.StoreAt(61, []byte{1, 2, 3, 4}), qt.ErrorMatches, `range 61\+4 exceeds buffer of 64 bytes`)
}

func TestStoreRequiresHostAccess(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)

	buf, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryFastDeviceAccess)
	c.Assert(err, qt.IsNil)
	c.Assert(buf.Store([]byte{1}), qt.ErrorIs, gfx.ErrNotHostVisible)
	c.Assert(dev.Count("MapMemory"), qt.Equals, 0)
}

func TestDeviceAddress(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)

	plain, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryFastDeviceAccess)
	c.Assert(err, qt.IsNil)
	_, ok := plain.DeviceAddress()
	c.Assert(ok, qt.IsFalse)
	c.Assert(dev.Count("BufferDeviceAddress"), qt.Equals, 0)

	addressed, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryFastDeviceAccess|gfx.MemoryDeviceAddress)
	c.Assert(err, qt.IsNil)
	addr, ok := addressed.DeviceAddress()
	c.Assert(ok, qt.IsTrue)
	c.Assert(addr.IsNull(), qt.IsFalse)
	c.Assert(addressed.Info().Usage&gfx.BufferUsageShaderDeviceAddress, qt.Not(qt.Equals), gfx.BufferUsageFlags(0))

	again, _ := addressed.DeviceAddress()
	c.Assert(again, qt.Equals, addr)
	c.Assert(dev.Count("BufferDeviceAddress"), qt.Equals, 1)
}

func TestInvalidInfoMakesNoDeviceCall(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)
	before := dev.Calls()

	_, err := res.NewBufferWithInfo(dev, alloc, gfx.BufferInfo{Align: 6, Size: 64})
	c.Assert(err, qt.ErrorIs, gfx.ErrInvalidBufferInfo)
	_, err = res.NewBuffer(dev, alloc, 0, gfx.BufferUsageStorage, 0)
	c.Assert(err, qt.ErrorIs, gfx.ErrInvalidBufferInfo)
	c.Assert(dev.Calls(), qt.Equals, before)
}

func TestCreateIsAllOrNothing(t *testing.T) {
	for _, method := range []string{"BindBufferMemory", "BufferDeviceAddress"} {
		t.Run(method, func(t *testing.T) {
			c := qt.New(t)
			dev := gfxtest.NewDevice()
			alloc := newAllocator(dev)

			dev.FailAt(method, 1)
			_, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryDeviceAddress)
			c.Assert(err, qt.ErrorIs, gfxtest.ErrInjected)
			c.Assert(dev.Live()["buffer"], qt.Equals, 0)
			c.Assert(alloc.Stats().Blocks, qt.Equals, 0)
		})
	}
}

func TestCreateFailsWhenNoMemoryFits(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDeviceWithMemory(gfx.MemoryProperties{
		Types: []gfx.MemoryType{{Flags: gfx.MemoryPropertyDeviceLocal}},
		Heaps: []gfx.MemoryHeap{{Size: 1 << 20, DeviceLocal: true}},
	})
	alloc := newAllocator(dev)

	_, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryUpload)
	c.Assert(err, qt.ErrorIs, gfx.ErrOutOfMemory)
	c.Assert(dev.Live()["buffer"], qt.Equals, 0)
	c.Assert(dev.DestroyCount("DestroyBuffer", 1), qt.Equals, 1)
}

func TestReleaseOnce(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)

	buf, err := res.NewBuffer(dev, alloc, 64, gfx.BufferUsageStorage, gfx.MemoryHostAccess)
	c.Assert(err, qt.IsNil)
	buf.Retain()

	c.Assert(buf.Release(), qt.IsNil)
	c.Assert(dev.Live()["buffer"], qt.Equals, 1)
	c.Assert(buf.Release(), qt.IsNil)
	c.Assert(dev.Live()["buffer"], qt.Equals, 0)
	c.Assert(buf.Release(), qt.ErrorIs, gfx.ErrReleased)
	c.Assert(dev.DestroyCount("DestroyBuffer", uint64(buf.Handle())), qt.Equals, 1)
	c.Assert(alloc.Stats().Blocks, qt.Equals, 0)

	c.Assert(buf.Store([]byte{1}), qt.ErrorIs, gfx.ErrReleased)
}

func TestImage(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := newAllocator(dev)

	img, err := res.NewImage(dev, alloc, gfx.ImageInfo{
		Extent: gfx.Extent3D{Width: 16, Height: 16},
		Format: gfx.FormatR8G8B8A8Unorm,
		Usage:  gfx.ImageUsageStorage,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(img.Info().Extent.Depth, qt.Equals, uint32(1))
	c.Assert(dev.Live()["image"], qt.Equals, 1)

	c.Assert(img.Release(), qt.IsNil)
	c.Assert(img.Release(), qt.ErrorIs, gfx.ErrReleased)
	c.Assert(dev.Live()["image"], qt.Equals, 0)

	_, err = res.NewImage(dev, alloc, gfx.ImageInfo{})
	c.Assert(err, qt.ErrorMatches, "invalid image extent .*")
}
