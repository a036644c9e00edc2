// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"strings"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
	vk "github.com/vulkan-go/vulkan"
)

// terminated returns names with the trailing NUL vulkan-go expects.
func terminated(names []string) []string {
	out := make([]string, len(names))
	for idx, name := range names {
		if strings.HasSuffix(name, "\x00") {
			out[idx] = name
			continue
		}
		out[idx] = name + "\x00"
	}
	return out
}

// missingExtensions lists the wanted names absent from have.
func missingExtensions(have, want []string) []string {
	present := make(map[string]bool, len(have))
	for _, name := range have {
		present[strings.TrimSuffix(name, "\x00")] = true
	}

	var missing []string
	for _, name := range want {
		if !present[strings.TrimSuffix(name, "\x00")] {
			missing = append(missing, name)
		}
	}
	return missing
}

// computeFamily picks the first queue family able to run compute work,
// which includes acceleration structure builds.
func computeFamily(families []vk.QueueFlags) (uint32, bool) {
	for idx, flags := range families {
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			return uint32(idx), true
		}
	}
	return 0, false
}

func maxVertex(count uint32) uint32 {
	if count == 0 {
		return 0
	}
	return count - 1
}

func memoryProperties(props vk.PhysicalDeviceMemoryProperties) gfx.MemoryProperties {
	var out gfx.MemoryProperties
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		t := props.MemoryTypes[i]
		t.Deref()
		out.Types = append(out.Types, gfx.MemoryType{
			Flags: gfx.MemoryPropertyFlags(t.PropertyFlags),
			Heap:  t.HeapIndex,
		})
	}
	for i := uint32(0); i < props.MemoryHeapCount; i++ {
		h := props.MemoryHeaps[i]
		h.Deref()
		out.Heaps = append(out.Heaps, gfx.MemoryHeap{
			Size:        uint64(h.Size),
			DeviceLocal: h.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return out
}

func poolSizes(sizes descriptor.Sizes) []vk.DescriptorPoolSize {
	var out []vk.DescriptorPoolSize
	for _, size := range sizes.PoolSizes() {
		out = append(out, vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(size.Type.Native()),
			DescriptorCount: size.Count,
		})
	}
	return out
}

func layoutBindings(bindings []descriptor.Binding) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for idx, b := range bindings {
		out[idx] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type.Native()),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	return out
}

func memoryBarriers(barriers []gfx.MemoryBarrier) []vk.MemoryBarrier {
	out := make([]vk.MemoryBarrier, len(barriers))
	for idx, b := range barriers {
		out[idx] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(b.SrcAccess),
			DstAccessMask: vk.AccessFlags(b.DstAccess),
		}
	}
	return out
}
