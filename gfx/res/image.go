// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package res

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/mem"
)

// NewImage creates a 2D image and binds memory to it.
func NewImage(device gfx.ImageDevice, alloc *mem.Allocator, info gfx.ImageInfo) (*Image, error) {
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		return nil, errors.Newf("invalid image extent %+v", info.Extent)
	}
	if info.Extent.Depth == 0 {
		info.Extent.Depth = 1
	}

	handle, err := device.CreateImage(info)
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateImage()")
	}

	req := device.ImageMemoryRequirements(handle)
	var mask uint64
	if req.Alignment > 0 {
		mask = req.Alignment - 1
	}
	block, err := alloc.Allocate(mem.Request{
		Size:      req.Size,
		AlignMask: mask,
		Usage:     info.Memory,
		TypeBits:  req.TypeBits,
	})
	if err != nil {
		device.DestroyImage(handle)
		return nil, err
	}

	if err := device.BindImageMemory(handle, block.Memory(), block.Offset()); err != nil {
		alloc.Release(block)
		device.DestroyImage(handle)
		return nil, errors.Wrap(err, "vk.BindImageMemory()")
	}

	return &Image{
		device: device,
		alloc:  alloc,
		info:   info,
		handle: handle,
		block:  block,
		refs:   1,
	}, nil
}

// Image implements and abstracts a device image with its memory.
type Image struct {
	device gfx.ImageDevice
	alloc  *mem.Allocator

	info   gfx.ImageInfo
	handle gfx.Image
	block  *mem.Block
	refs   int32
}

// Handle returns the device image handle.
func (i *Image) Handle() gfx.Image {
	return i.handle
}

// Info returns the info the image was created from.
func (i *Image) Info() gfx.ImageInfo {
	return i.info
}

// Retain adds a reference to the image.
func (i *Image) Retain() *Image {
	atomic.AddInt32(&i.refs, 1)
	return i
}

// Release drops a reference, the last one destroys the image.
func (i *Image) Release() error {
	refs := atomic.AddInt32(&i.refs, -1)
	switch {
	case refs > 0:
		return nil
	case refs < 0:
		atomic.AddInt32(&i.refs, 1)
		return errors.Wrap(gfx.ErrReleased, "image")
	}
	i.device.DestroyImage(i.handle)
	return i.alloc.Release(i.block)
}
