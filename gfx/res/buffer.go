// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package res owns device buffers and images together with the memory
// blocks bound to them.
package res

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/mem"
)

// NewBuffer creates, allocates and binds a new buffer of exactly size bytes.
func NewBuffer(device gfx.BufferDevice, alloc *mem.Allocator, size uint64, usage gfx.BufferUsageFlags, memory gfx.MemoryUsage) (*Buffer, error) {
	return NewBufferWithInfo(device, alloc, gfx.BufferInfo{
		Size:   size,
		Usage:  usage,
		Memory: memory,
	})
}

// NewBufferWithInfo creates a buffer from info. The info is validated before
// any device call, and nothing stays alive when a later step fails.
func NewBufferWithInfo(device gfx.BufferDevice, alloc *mem.Allocator, info gfx.BufferInfo) (*Buffer, error) {
	if info.Size == 0 || !info.IsValid() {
		return nil, errors.Wrapf(gfx.ErrInvalidBufferInfo, "%+v", info)
	}

	usage := info.Usage
	if info.Memory&gfx.MemoryDeviceAddress != 0 {
		usage |= gfx.BufferUsageShaderDeviceAddress
	}

	handle, err := device.CreateBuffer(info.Size, usage)
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateBuffer()")
	}

	req := device.BufferMemoryRequirements(handle)
	mask := info.Align
	if req.Alignment > 0 {
		mask |= req.Alignment - 1
	}
	block, err := alloc.Allocate(mem.Request{
		Size:      req.Size,
		AlignMask: mask,
		Usage:     info.Memory,
		TypeBits:  req.TypeBits,
	})
	if err != nil {
		device.DestroyBuffer(handle)
		return nil, err
	}

	if err := device.BindBufferMemory(handle, block.Memory(), block.Offset()); err != nil {
		alloc.Release(block)
		device.DestroyBuffer(handle)
		return nil, errors.Wrap(err, "vk.BindBufferMemory()")
	}

	var address gfx.DeviceAddress
	if info.Memory&gfx.MemoryDeviceAddress != 0 {
		if address, err = device.BufferDeviceAddress(handle); err != nil {
			alloc.Release(block)
			device.DestroyBuffer(handle)
			return nil, errors.Wrap(err, "vk.GetBufferDeviceAddress()")
		}
	}

	info.Usage = usage
	return &Buffer{
		device:  device,
		alloc:   alloc,
		info:    info,
		handle:  handle,
		block:   block,
		address: address,
		refs:    1,
	}, nil
}

// Buffer is a device buffer bound to an allocator block.
// It is reference counted, the last Release destroys it.
type Buffer struct {
	device gfx.BufferDevice
	alloc  *mem.Allocator

	info    gfx.BufferInfo
	handle  gfx.Buffer
	block   *mem.Block
	address gfx.DeviceAddress
	refs    int32
}

// Handle returns the device buffer handle.
func (b *Buffer) Handle() gfx.Buffer {
	return b.handle
}

// Size returns the size the buffer was created with.
func (b *Buffer) Size() uint64 {
	return b.info.Size
}

// Info returns the info the buffer was created from.
func (b *Buffer) Info() gfx.BufferInfo {
	return b.info
}

// DeviceAddress returns the address of the buffer, present only if
// the buffer was created with gfx.MemoryDeviceAddress.
func (b *Buffer) DeviceAddress() (gfx.DeviceAddress, bool) {
	return b.address, !b.address.IsNull()
}

// Store copies data to the start of the buffer through a host mapping.
func (b *Buffer) Store(data []byte) error {
	return b.StoreAt(0, data)
}

// StoreAt copies data into the buffer at offset.
func (b *Buffer) StoreAt(offset uint64, data []byte) error {
	mapped, err := b.mapRange(offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(mapped, data)
	b.alloc.Unmap(b.block)
	return nil
}

// Load reads len(dst) bytes from the start of the buffer.
func (b *Buffer) Load(dst []byte) error {
	mapped, err := b.mapRange(0, uint64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, mapped)
	b.alloc.Unmap(b.block)
	return nil
}

func (b *Buffer) mapRange(offset, size uint64) ([]byte, error) {
	if atomic.LoadInt32(&b.refs) <= 0 {
		return nil, errors.Wrap(gfx.ErrReleased, "buffer")
	}
	if !b.info.Memory.HostVisible() || !b.block.HostVisible() {
		return nil, gfx.ErrNotHostVisible
	}
	if offset > b.info.Size || size > b.info.Size-offset {
		return nil, errors.Newf("range %d+%d exceeds buffer of %d bytes", offset, size, b.info.Size)
	}
	mapped, err := b.alloc.Map(b.block)
	if err != nil {
		return nil, err
	}
	return mapped[offset : offset+size], nil
}

// Retain adds a reference to the buffer.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release drops a reference, the last one destroys the buffer
// and returns its memory to the allocator.
func (b *Buffer) Release() error {
	refs := atomic.AddInt32(&b.refs, -1)
	switch {
	case refs > 0:
		return nil
	case refs < 0:
		atomic.AddInt32(&b.refs, 1)
		return errors.Wrap(gfx.ErrReleased, "buffer")
	}
	b.device.DestroyBuffer(b.handle)
	return b.alloc.Release(b.block)
}
