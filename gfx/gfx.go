// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device-agnostic types the ray tracing core is built on.
// Handles are plain values, a backend maps them onto native objects.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release() error
}

// Opaque handles to device objects. The zero value of every handle is null.
type (
	Buffer                uint64
	Image                 uint64
	Memory                uint64
	AccelerationStructure uint64
	CommandPool           uint64
	CommandBuffer         uint64
	Queue                 uint64
	Fence                 uint64
	Semaphore             uint64
	ShaderModule          uint64
	DescriptorPool        uint64
	DescriptorSet         uint64
)

// Null handle values.
const (
	NullBuffer                Buffer                = 0
	NullImage                 Image                 = 0
	NullMemory                Memory                = 0
	NullAccelerationStructure AccelerationStructure = 0
	NullFence                 Fence                 = 0
)

// Extent3D describes the size of an image.
type Extent3D struct {
	Width, Height, Depth uint32
}
