// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// MemoryProperties implements gfx.MemoryDevice.
func (d *Device) MemoryProperties() gfx.MemoryProperties {
	return d.memoryProperties
}

// AllocateMemory implements gfx.MemoryDevice.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32, flags gfx.MemoryAllocateFlags) (gfx.Memory, error) {
	mem, err := allocateMemory(d.device, size, typeIndex, flags)
	if err != nil {
		return gfx.NullMemory, errors.Wrap(err, "vk.AllocateMemory()")
	}
	return gfx.Memory(d.memories.Insert(mem)), nil
}

// FreeMemory implements gfx.MemoryDevice.
func (d *Device) FreeMemory(mem gfx.Memory) {
	native, ok := d.memories.Remove(uint64(mem))
	if !ok {
		d.log.WithError(unknown("memory", uint64(mem))).Error("free memory")
		return
	}
	vk.FreeMemory(d.device, native, nil)
}

// MapMemory implements gfx.MemoryDevice.
func (d *Device) MapMemory(mem gfx.Memory, offset, size uint64) ([]byte, error) {
	native, ok := d.memories.Get(uint64(mem))
	if !ok {
		return nil, unknown("memory", uint64(mem))
	}
	var data unsafe.Pointer
	if err := vk.Error(vk.MapMemory(d.device, native, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data)); err != nil {
		return nil, errors.Wrap(err, "vk.MapMemory()")
	}
	return unsafe.Slice((*byte)(data), size), nil
}

// UnmapMemory implements gfx.MemoryDevice.
func (d *Device) UnmapMemory(mem gfx.Memory) {
	if native, ok := d.memories.Get(uint64(mem)); ok {
		vk.UnmapMemory(d.device, native)
	}
}

// CreateBuffer implements gfx.BufferDevice.
func (d *Device) CreateBuffer(size uint64, usage gfx.BufferUsageFlags) (gfx.Buffer, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(d.device, &bci, nil, &buffer)); err != nil {
		return gfx.NullBuffer, errors.Wrap(err, "vk.CreateBuffer()")
	}
	return gfx.Buffer(d.buffers.Insert(buffer)), nil
}

// DestroyBuffer implements gfx.BufferDevice.
func (d *Device) DestroyBuffer(buf gfx.Buffer) {
	native, ok := d.buffers.Remove(uint64(buf))
	if !ok {
		d.log.WithError(unknown("buffer", uint64(buf))).Error("destroy buffer")
		return
	}
	vk.DestroyBuffer(d.device, native, nil)
}

// BufferMemoryRequirements implements gfx.BufferDevice.
func (d *Device) BufferMemoryRequirements(buf gfx.Buffer) gfx.MemoryRequirements {
	native, ok := d.buffers.Get(uint64(buf))
	if !ok {
		return gfx.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, native, &req)
	req.Deref()
	return gfx.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

// BindBufferMemory implements gfx.BufferDevice.
func (d *Device) BindBufferMemory(buf gfx.Buffer, mem gfx.Memory, offset uint64) error {
	native, ok := d.buffers.Get(uint64(buf))
	if !ok {
		return unknown("buffer", uint64(buf))
	}
	memory, ok := d.memories.Get(uint64(mem))
	if !ok {
		return unknown("memory", uint64(mem))
	}
	return errors.Wrap(vk.Error(vk.BindBufferMemory(d.device, native, memory, vk.DeviceSize(offset))), "vk.BindBufferMemory()")
}

// BufferDeviceAddress implements gfx.BufferDevice.
func (d *Device) BufferDeviceAddress(buf gfx.Buffer) (gfx.DeviceAddress, error) {
	native, ok := d.buffers.Get(uint64(buf))
	if !ok {
		return 0, unknown("buffer", uint64(buf))
	}
	addr, err := gfx.NewDeviceAddress(d.khr.bufferAddress(d.device, native))
	return addr, errors.Wrap(err, "vkGetBufferDeviceAddress()")
}

// CreateImage implements gfx.ImageDevice. The view is created once memory
// is bound.
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  info.Extent.Depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := vk.Error(vk.CreateImage(d.device, &ici, nil, &handle)); err != nil {
		return gfx.NullImage, errors.Wrap(err, "vk.CreateImage()")
	}
	return gfx.Image(d.images.Insert(&image{handle: handle, format: ici.Format})), nil
}

// DestroyImage implements gfx.ImageDevice.
func (d *Device) DestroyImage(img gfx.Image) {
	native, ok := d.images.Remove(uint64(img))
	if !ok {
		d.log.WithError(unknown("image", uint64(img))).Error("destroy image")
		return
	}
	d.destroyImage(native)
}

func (d *Device) destroyImage(img *image) {
	if img.view != nil {
		vk.DestroyImageView(d.device, img.view, nil)
	}
	vk.DestroyImage(d.device, img.handle, nil)
}

// ImageMemoryRequirements implements gfx.ImageDevice.
func (d *Device) ImageMemoryRequirements(img gfx.Image) gfx.MemoryRequirements {
	native, ok := d.images.Get(uint64(img))
	if !ok {
		return gfx.MemoryRequirements{}
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, native.handle, &req)
	req.Deref()
	return gfx.MemoryRequirements{
		Size:      uint64(req.Size),
		Alignment: uint64(req.Alignment),
		TypeBits:  req.MemoryTypeBits,
	}
}

// BindImageMemory implements gfx.ImageDevice.
func (d *Device) BindImageMemory(img gfx.Image, mem gfx.Memory, offset uint64) error {
	native, ok := d.images.Get(uint64(img))
	if !ok {
		return unknown("image", uint64(img))
	}
	memory, ok := d.memories.Get(uint64(mem))
	if !ok {
		return unknown("memory", uint64(mem))
	}
	if err := vk.Error(vk.BindImageMemory(d.device, native.handle, memory, vk.DeviceSize(offset))); err != nil {
		return errors.Wrap(err, "vk.BindImageMemory()")
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    native.handle,
		ViewType: vk.ImageViewType2d,
		Format:   native.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return errors.Wrap(err, "vk.CreateImageView()")
	}
	native.view = view
	return nil
}
