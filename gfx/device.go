// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "time"

// MemoryDevice allocates and maps raw device memory.
type MemoryDevice interface {
	MemoryProperties() MemoryProperties
	AllocateMemory(size uint64, typeIndex uint32, flags MemoryAllocateFlags) (Memory, error)
	FreeMemory(Memory)

	// MapMemory maps a range of the allocation, the returned slice
	// aliases device memory until UnmapMemory is called.
	MapMemory(mem Memory, offset, size uint64) ([]byte, error)
	UnmapMemory(Memory)
}

// BufferDevice creates buffers and binds memory to them.
type BufferDevice interface {
	CreateBuffer(size uint64, usage BufferUsageFlags) (Buffer, error)
	DestroyBuffer(Buffer)
	BufferMemoryRequirements(Buffer) MemoryRequirements
	BindBufferMemory(buf Buffer, mem Memory, offset uint64) error
	BufferDeviceAddress(Buffer) (DeviceAddress, error)
}

// ImageDevice creates images and binds memory to them.
type ImageDevice interface {
	CreateImage(ImageInfo) (Image, error)
	DestroyImage(Image)
	ImageMemoryRequirements(Image) MemoryRequirements
	BindImageMemory(img Image, mem Memory, offset uint64) error
}

// AccelerationStructureDevice creates acceleration structures.
type AccelerationStructureDevice interface {
	AccelerationStructureBuildSizes(level AccelerationStructureLevel, flags BuildFlags, geometries []GeometryInfo) (BuildSizes, error)
	CreateAccelerationStructure(AccelerationStructureCreateInfo) (AccelerationStructure, error)
	DestroyAccelerationStructure(AccelerationStructure)
	AccelerationStructureDeviceAddress(AccelerationStructure) (DeviceAddress, error)
}

// CommandDevice manages command pools, buffers and queue submission.
type CommandDevice interface {
	CreateCommandPool(queueFamily uint32, flags CommandPoolFlags) (CommandPool, error)
	DestroyCommandPool(CommandPool)
	AllocateCommandBuffers(pool CommandPool, level CommandBufferLevel, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	BeginCommandBuffer(CommandBuffer, CommandBufferUsage) error
	EndCommandBuffer(CommandBuffer) error

	QueueSubmit(queue Queue, buffers []CommandBuffer, fence Fence) error
	QueueWaitIdle(Queue) error

	CreateFence() (Fence, error)
	// WaitForFence returns ErrTimeout if the fence is not signaled in time.
	WaitForFence(fence Fence, timeout time.Duration) error
	DestroyFence(Fence)
}

// Recorder records commands into a command buffer in the recording state.
type Recorder interface {
	CmdPipelineBarrier(cmd CommandBuffer, src, dst PipelineStageFlags, barriers []MemoryBarrier) error
	CmdBuildAccelerationStructure(cmd CommandBuffer, info BuildGeometryInfo, ranges []BuildRange) error
}

// Limits are the device limits the core depends on.
type Limits struct {
	MinScratchOffsetAlignment uint32
	MaxInstanceCount          uint64
}

// Device is everything the ray tracing core needs from a device.
type Device interface {
	MemoryDevice
	BufferDevice
	ImageDevice
	AccelerationStructureDevice
	CommandDevice
	Recorder

	Limits() Limits
}
