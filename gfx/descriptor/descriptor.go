// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package descriptor sizes descriptor pools from layout bindings and
// describes descriptor writes.
package descriptor

import (
	"fmt"

	"github.com/devblok/tracer/gfx"
)

// Type is one of the canonical descriptor kinds.
type Type int

// Descriptor types, in table order.
const (
	Sampler Type = iota
	CombinedImageSampler
	SampledImage
	StorageImage
	UniformTexelBuffer
	StorageTexelBuffer
	UniformBuffer
	StorageBuffer
	UniformBufferDynamic
	StorageBufferDynamic
	InputAttachment
	AccelerationStructure

	typeCount
)

// Native returns the VkDescriptorType value.
func (t Type) Native() uint32 {
	if t == AccelerationStructure {
		return 1000150000
	}
	return uint32(t)
}

func (t Type) String() string {
	switch t {
	case Sampler:
		return "Sampler"
	case CombinedImageSampler:
		return "CombinedImageSampler"
	case SampledImage:
		return "SampledImage"
	case StorageImage:
		return "StorageImage"
	case UniformTexelBuffer:
		return "UniformTexelBuffer"
	case StorageTexelBuffer:
		return "StorageTexelBuffer"
	case UniformBuffer:
		return "UniformBuffer"
	case StorageBuffer:
		return "StorageBuffer"
	case UniformBufferDynamic:
		return "UniformBufferDynamic"
	case StorageBufferDynamic:
		return "StorageBufferDynamic"
	case InputAttachment:
		return "InputAttachment"
	case AccelerationStructure:
		return "AccelerationStructure"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ShaderStages match VkShaderStageFlagBits.
type ShaderStages uint32

// Shader stages.
const (
	StageVertex       ShaderStages = 0x0001
	StageFragment     ShaderStages = 0x0010
	StageCompute      ShaderStages = 0x0020
	StageRaygen       ShaderStages = 0x0100
	StageAnyHit       ShaderStages = 0x0200
	StageClosestHit   ShaderStages = 0x0400
	StageMiss         ShaderStages = 0x0800
	StageIntersection ShaderStages = 0x1000
	StageCallable     ShaderStages = 0x2000
)

// Binding is one entry of a descriptor set layout.
type Binding struct {
	Binding uint32
	Type    Type
	Count   uint32
	Stages  ShaderStages
}

// PoolSize is a count of descriptors of one type.
type PoolSize struct {
	Type  Type
	Count uint32
}

// Sizes counts descriptors per type.
type Sizes [typeCount]uint32

// FromBindings sums binding counts per descriptor type.
func FromBindings(bindings []Binding) Sizes {
	var s Sizes
	for _, b := range bindings {
		if b.Type < 0 || b.Type >= typeCount {
			continue
		}
		s[b.Type] += b.Count
	}
	return s
}

// Add returns the per-type sum of both tables.
func (s Sizes) Add(other Sizes) Sizes {
	for idx := range s {
		s[idx] += other[idx]
	}
	return s
}

// Scale multiplies every count, used to size a pool for n sets.
func (s Sizes) Scale(n uint32) Sizes {
	for idx := range s {
		s[idx] *= n
	}
	return s
}

// Count returns the number of descriptors of type t.
func (s Sizes) Count(t Type) uint32 {
	if t < 0 || t >= typeCount {
		return 0
	}
	return s[t]
}

// PoolSizes lists the non-zero counts in table order.
func (s Sizes) PoolSizes() []PoolSize {
	var out []PoolSize
	for idx, count := range s {
		if count == 0 {
			continue
		}
		out = append(out, PoolSize{Type: Type(idx), Count: count})
	}
	return out
}

// Resource is what a descriptor write points at. It is one of
// BufferResource, ImageResource or AccelerationStructureResource.
type Resource interface {
	isResource()
}

// BufferResource is a range of a buffer.
type BufferResource struct {
	Buffer gfx.Buffer
	Offset uint64
	Range  uint64
}

// ImageResource is an image in the general layout.
type ImageResource struct {
	Image gfx.Image
}

// AccelerationStructureResource is a built acceleration structure.
type AccelerationStructureResource struct {
	Structure gfx.AccelerationStructure
}

func (BufferResource) isResource()                {}
func (ImageResource) isResource()                 {}
func (AccelerationStructureResource) isResource() {}

// Write updates one array element of a binding.
type Write struct {
	Set      gfx.DescriptorSet
	Binding  uint32
	Element  uint32
	Type     Type
	Resource Resource
}

// Writer applies descriptor writes, implemented by the device backend.
type Writer interface {
	UpdateDescriptorSets(writes []Write) error
}
