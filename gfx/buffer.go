// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "math"

// BufferUsageFlags match VkBufferUsageFlagBits.
type BufferUsageFlags uint32

// Buffer usages.
const (
	BufferUsageTransferSrc                             BufferUsageFlags = 0x00000001
	BufferUsageTransferDst                             BufferUsageFlags = 0x00000002
	BufferUsageUniformTexel                            BufferUsageFlags = 0x00000004
	BufferUsageStorageTexel                            BufferUsageFlags = 0x00000008
	BufferUsageUniform                                 BufferUsageFlags = 0x00000010
	BufferUsageStorage                                 BufferUsageFlags = 0x00000020
	BufferUsageIndex                                   BufferUsageFlags = 0x00000040
	BufferUsageVertex                                  BufferUsageFlags = 0x00000080
	BufferUsageIndirect                                BufferUsageFlags = 0x00000100
	BufferUsageShaderBindingTable                      BufferUsageFlags = 0x00000400
	BufferUsageShaderDeviceAddress                     BufferUsageFlags = 0x00020000
	BufferUsageAccelerationStructureBuildInputReadOnly BufferUsageFlags = 0x00080000
	BufferUsageAccelerationStructureStorage            BufferUsageFlags = 0x00100000
)

// MemoryUsage hints how an allocation is going to be used,
// the allocator picks a memory type from it.
type MemoryUsage uint32

// Memory usage hints.
const (
	// MemoryDeviceAddress allocations back buffers whose address is queried.
	MemoryDeviceAddress MemoryUsage = 1 << iota
	// MemoryHostAccess allocations are mappable.
	MemoryHostAccess
	// MemoryFastDeviceAccess prefers device local memory.
	MemoryFastDeviceAccess
	// MemoryUpload is host visible staging memory written once by the host.
	MemoryUpload
	// MemoryTransient is short lived, for example framebuffer attachments.
	MemoryTransient
)

// HostVisible reports whether the usage requires mappable memory.
func (u MemoryUsage) HostVisible() bool {
	return u&(MemoryHostAccess|MemoryUpload) != 0
}

// MemoryPropertyFlags match VkMemoryPropertyFlagBits.
type MemoryPropertyFlags uint32

// Memory properties.
const (
	MemoryPropertyDeviceLocal     MemoryPropertyFlags = 0x01
	MemoryPropertyHostVisible     MemoryPropertyFlags = 0x02
	MemoryPropertyHostCoherent    MemoryPropertyFlags = 0x04
	MemoryPropertyHostCached      MemoryPropertyFlags = 0x08
	MemoryPropertyLazilyAllocated MemoryPropertyFlags = 0x10
)

// MemoryAllocateFlags match VkMemoryAllocateFlagBits.
type MemoryAllocateFlags uint32

// MemoryAllocateDeviceAddress enables device address queries on the allocation.
const MemoryAllocateDeviceAddress MemoryAllocateFlags = 0x2

// MemoryType is one of the memory types a device exposes.
type MemoryType struct {
	Flags MemoryPropertyFlags
	Heap  uint32
}

// MemoryHeap is a device memory heap.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

// MemoryProperties lists memory types and heaps of a device.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// MemoryRequirements are returned by the device for a buffer or an image.
type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// BufferInfo describes a buffer to be created.
// Align holds the alignment mask, that is alignment-1.
type BufferInfo struct {
	Align  uint64
	Size   uint64
	Usage  BufferUsageFlags
	Memory MemoryUsage
}

// IsValid checks that Align+1 is a power of two and that
// Size can be rounded up to it without overflowing.
func (b BufferInfo) IsValid() bool {
	alignment := b.Align + 1
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return false
	}
	return b.Size <= math.MaxUint64-b.Align
}

// AlignedSize returns Size rounded up to the alignment mask.
// Only meaningful for a valid BufferInfo.
func (b BufferInfo) AlignedSize() uint64 {
	return (b.Size + b.Align) &^ b.Align
}

// Format matches VkFormat, only the formats used here are named.
type Format uint32

// Formats.
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
)

// IndexType matches VkIndexType.
type IndexType uint32

// Index types.
const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
	IndexTypeNone   IndexType = 1000165000
)

// ImageUsageFlags match VkImageUsageFlagBits.
type ImageUsageFlags uint32

// Image usages.
const (
	ImageUsageTransferSrc     ImageUsageFlags = 0x01
	ImageUsageTransferDst     ImageUsageFlags = 0x02
	ImageUsageSampled         ImageUsageFlags = 0x04
	ImageUsageStorage         ImageUsageFlags = 0x08
	ImageUsageColorAttachment ImageUsageFlags = 0x10
)

// ImageInfo describes a 2D image to be created.
type ImageInfo struct {
	Extent Extent3D
	Format Format
	Usage  ImageUsageFlags
	Memory MemoryUsage
}
