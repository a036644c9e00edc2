// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mem_test

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/gfxtest"
	"github.com/devblok/tracer/gfx/mem"
)

const allTypes = 0b111

func TestAllocateSubAllocatesOnePage(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<20))

	a, err := alloc.Allocate(mem.Request{Size: 100, AlignMask: 0xff, Usage: gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	b, err := alloc.Allocate(mem.Request{Size: 300, AlignMask: 0xff, Usage: gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)

	c.Assert(a.Memory(), qt.Equals, b.Memory())
	c.Assert(a.Offset(), qt.Equals, uint64(0))
	c.Assert(a.Size(), qt.Equals, uint64(256))
	c.Assert(b.Offset(), qt.Equals, uint64(256))
	c.Assert(b.Size(), qt.Equals, uint64(512))
	c.Assert(dev.Count("AllocateMemory"), qt.Equals, 1)
	c.Assert(alloc.Stats().Blocks, qt.Equals, 2)
}

func TestReleaseCoalesces(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(4096))

	req := mem.Request{Size: 1024, TypeBits: allTypes}
	var blocks []*mem.Block
	for i := 0; i < 4; i++ {
		b, err := alloc.Allocate(req)
		c.Assert(err, qt.IsNil)
		blocks = append(blocks, b)
	}
	c.Assert(alloc.Stats().Available, qt.Equals, uint64(0))

	for _, idx := range []int{1, 3, 2, 0} {
		c.Assert(alloc.Release(blocks[idx]), qt.IsNil)
	}
	stats := alloc.Stats()
	c.Assert(stats.Available, qt.Equals, uint64(4096))
	c.Assert(stats.Blocks, qt.Equals, 0)

	whole, err := alloc.Allocate(mem.Request{Size: 4096, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(whole.Memory(), qt.Equals, blocks[0].Memory())
	c.Assert(dev.Count("AllocateMemory"), qt.Equals, 1)
}

func TestDoubleReleaseFails(t *testing.T) {
	c := qt.New(t)
	alloc := mem.NewAllocator(gfxtest.NewDevice(), mem.WithPageSize(1<<16))

	b, err := alloc.Allocate(mem.Request{Size: 64, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(alloc.Release(b), qt.IsNil)
	c.Assert(alloc.Release(b), qt.ErrorIs, gfx.ErrReleased)
	c.Assert(alloc.Stats().Blocks, qt.Equals, 0)
}

func TestMemoryTypeSelection(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<16))

	device, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(device.HostVisible(), qt.IsFalse)

	upload, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryUpload, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(upload.HostVisible(), qt.IsTrue)

	shared, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryHostAccess | gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(shared.HostVisible(), qt.IsTrue)
	c.Assert(shared.Memory(), qt.Not(qt.Equals), upload.Memory())

	addressable, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryDeviceAddress | gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(addressable.DeviceAddressable(), qt.IsTrue)
	c.Assert(addressable.Memory(), qt.Not(qt.Equals), device.Memory())
}

func TestAllocateOutOfMemory(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<16))

	_, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryHostAccess, TypeBits: 0b001})
	c.Assert(err, qt.ErrorIs, gfx.ErrOutOfMemory)
	c.Assert(dev.Count("AllocateMemory"), qt.Equals, 0)

	dev.FailAt("AllocateMemory", 1)
	b, err := alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryFastDeviceAccess, TypeBits: 0b101})
	c.Assert(err, qt.IsNil, qt.Commentf("falls back to the next memory type"))
	c.Assert(b, qt.Not(qt.IsNil))
	c.Assert(dev.Count("AllocateMemory"), qt.Equals, 2)
}

func TestAllocateRejectsInvalidRequest(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<16))

	_, err := alloc.Allocate(mem.Request{Size: 64, AlignMask: 3 << 4, TypeBits: allTypes})
	c.Assert(err, qt.ErrorIs, gfx.ErrInvalidBufferInfo)
	_, err = alloc.Allocate(mem.Request{Size: 0, TypeBits: allTypes})
	c.Assert(err, qt.ErrorIs, gfx.ErrInvalidBufferInfo)
	c.Assert(dev.Calls(), qt.Equals, 1) // MemoryProperties
}

func TestDedicatedPage(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(4096))

	big, err := alloc.Allocate(mem.Request{Size: 3000, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(alloc.Stats().Reserved, qt.Equals, uint64(3000))

	c.Assert(alloc.Release(big), qt.IsNil)
	c.Assert(alloc.Stats().Pages, qt.Equals, 0)
	c.Assert(dev.Count("FreeMemory"), qt.Equals, 1)
}

func TestMapSharesPageMapping(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<16))

	req := mem.Request{Size: 16, Usage: gfx.MemoryHostAccess, TypeBits: allTypes}
	a, err := alloc.Allocate(req)
	c.Assert(err, qt.IsNil)
	b, err := alloc.Allocate(req)
	c.Assert(err, qt.IsNil)

	am, err := alloc.Map(a)
	c.Assert(err, qt.IsNil)
	bm, err := alloc.Map(b)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Count("MapMemory"), qt.Equals, 1)

	copy(am, "0123456789abcdef")
	copy(bm, "fedcba9876543210")
	backing := dev.MemoryBytes(a.Memory())
	c.Assert(string(backing[a.Offset():a.Offset()+16]), qt.Equals, "0123456789abcdef")
	c.Assert(string(backing[b.Offset():b.Offset()+16]), qt.Equals, "fedcba9876543210")

	alloc.Unmap(a)
	c.Assert(dev.Count("UnmapMemory"), qt.Equals, 0)
	c.Assert(alloc.Release(b), qt.IsNil)
	c.Assert(dev.Count("UnmapMemory"), qt.Equals, 1)
}

func TestMapDeviceLocalFails(t *testing.T) {
	c := qt.New(t)
	alloc := mem.NewAllocator(gfxtest.NewDevice(), mem.WithPageSize(1<<16))

	b, err := alloc.Allocate(mem.Request{Size: 16, Usage: gfx.MemoryFastDeviceAccess, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	_, err = alloc.Map(b)
	c.Assert(err, qt.ErrorIs, gfx.ErrNotHostVisible)
}

func TestTrimAndDestroy(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(4096))

	a, err := alloc.Allocate(mem.Request{Size: 64, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	_, err = alloc.Allocate(mem.Request{Size: 64, Usage: gfx.MemoryUpload, TypeBits: allTypes})
	c.Assert(err, qt.IsNil)
	c.Assert(alloc.Release(a), qt.IsNil)

	c.Assert(alloc.Trim(), qt.Equals, 1)
	c.Assert(alloc.Stats().Pages, qt.Equals, 1)

	alloc.Destroy()
	c.Assert(alloc.Stats().Pages, qt.Equals, 0)
	c.Assert(dev.Live()["memory"], qt.Equals, 0)
}

func TestConcurrentAllocateRelease(t *testing.T) {
	c := qt.New(t)
	alloc := mem.NewAllocator(gfxtest.NewDevice(), mem.WithPageSize(1<<16))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b, err := alloc.Allocate(mem.Request{Size: 512, AlignMask: 0x3f, TypeBits: allTypes})
				if err != nil {
					errs <- err
					return
				}
				if err := alloc.Release(b); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Check(err, qt.IsNil)
	}
	c.Assert(alloc.Stats().Blocks, qt.Equals, 0)
}

func BenchmarkAllocateRelease(b *testing.B) {
	alloc := mem.NewAllocator(gfxtest.NewDevice(), mem.WithPageSize(1<<16))
	req := mem.Request{Size: 4096, AlignMask: 0xff, TypeBits: allTypes}
	for idx := 0; idx < b.N; idx++ {
		block, err := alloc.Allocate(req)
		if err != nil {
			b.Fatal(err)
		}
		alloc.Release(block)
	}
}
