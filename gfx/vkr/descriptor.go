// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetLayout is a handle to a native descriptor set layout.
type DescriptorSetLayout uint64

// CreateDescriptorSetLayout creates a layout from bindings.
func (d *Device) CreateDescriptorSetLayout(bindings []descriptor.Binding) (DescriptorSetLayout, error) {
	native := layoutBindings(bindings)
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(native)),
		PBindings:    native,
	}
	var layout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorSetLayout()")
	}
	return DescriptorSetLayout(d.layouts.Insert(layout)), nil
}

// DestroyDescriptorSetLayout destroys a layout.
func (d *Device) DestroyDescriptorSetLayout(layout DescriptorSetLayout) {
	if native, ok := d.layouts.Remove(uint64(layout)); ok {
		vk.DestroyDescriptorSetLayout(d.device, native, nil)
	}
}

// CreateDescriptorPool creates a pool that holds maxSets sets with the
// given descriptor counts in total.
func (d *Device) CreateDescriptorPool(sizes descriptor.Sizes, maxSets uint32) (gfx.DescriptorPool, error) {
	native := poolSizes(sizes)
	if len(native) == 0 {
		return 0, errors.New("descriptor pool without descriptors")
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(native)),
		PPoolSizes:    native,
	}
	var pool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateDescriptorPool()")
	}
	return gfx.DescriptorPool(d.descriptorPools.Insert(&descriptorPool{handle: pool})), nil
}

// DestroyDescriptorPool destroys a pool and every set allocated from it.
func (d *Device) DestroyDescriptorPool(pool gfx.DescriptorPool) {
	native, ok := d.descriptorPools.Remove(uint64(pool))
	if !ok {
		d.log.WithError(unknown("descriptor pool", uint64(pool))).Error("destroy descriptor pool")
		return
	}
	for _, set := range native.sets {
		d.sets.Remove(uint64(set))
	}
	vk.DestroyDescriptorPool(d.device, native.handle, nil)
}

// AllocateDescriptorSet allocates one set with layout from pool.
func (d *Device) AllocateDescriptorSet(pool gfx.DescriptorPool, layout DescriptorSetLayout) (gfx.DescriptorSet, error) {
	nativePool, ok := d.descriptorPools.Get(uint64(pool))
	if !ok {
		return 0, unknown("descriptor pool", uint64(pool))
	}
	nativeLayout, ok := d.layouts.Get(uint64(layout))
	if !ok {
		return 0, unknown("descriptor set layout", uint64(layout))
	}
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     nativePool.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{nativeLayout},
	}
	var set vk.DescriptorSet
	if err := vk.Error(vk.AllocateDescriptorSets(d.device, &dsai, &set)); err != nil {
		return 0, errors.Wrap(err, "vk.AllocateDescriptorSets()")
	}
	handle := gfx.DescriptorSet(d.sets.Insert(set))
	nativePool.sets = append(nativePool.sets, handle)
	return handle, nil
}

// UpdateDescriptorSets implements descriptor.Writer. Buffer and image
// writes go out in one call, acceleration structures one by one.
func (d *Device) UpdateDescriptorSets(writes []descriptor.Write) error {
	var native []vk.WriteDescriptorSet
	for _, w := range writes {
		set, ok := d.sets.Get(uint64(w.Set))
		if !ok {
			return unknown("descriptor set", uint64(w.Set))
		}
		wds := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: w.Element,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type.Native()),
		}

		switch r := w.Resource.(type) {
		case descriptor.BufferResource:
			buffer, ok := d.buffers.Get(uint64(r.Buffer))
			if !ok {
				return unknown("buffer", uint64(r.Buffer))
			}
			size := vk.DeviceSize(r.Range)
			if size == 0 {
				size = ^vk.DeviceSize(0)
			}
			wds.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer,
				Offset: vk.DeviceSize(r.Offset),
				Range:  size,
			}}
		case descriptor.ImageResource:
			img, ok := d.images.Get(uint64(r.Image))
			if !ok || img.view == nil {
				return unknown("image view", uint64(r.Image))
			}
			wds.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   img.view,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		case descriptor.AccelerationStructureResource:
			s, ok := d.structures.Get(uint64(r.Structure))
			if !ok {
				return unknown("acceleration structure", uint64(r.Structure))
			}
			writeStructure(d.device, set, w.Binding, w.Element, s)
			continue
		default:
			return errors.Newf("binding %d: unsupported resource %T", w.Binding, w.Resource)
		}
		native = append(native, wds)
	}

	if len(native) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(native)), native, 0, nil)
	}
	return nil
}

// CreateShaderModule implements shader.Device.
func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(d.device, &smci, nil, &module)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateShaderModule()")
	}
	return gfx.ShaderModule(d.shaders.Insert(module)), nil
}

// DestroyShaderModule implements shader.Device.
func (d *Device) DestroyShaderModule(module gfx.ShaderModule) {
	native, ok := d.shaders.Remove(uint64(module))
	if !ok {
		d.log.WithError(unknown("shader module", uint64(module))).Error("destroy shader module")
		return
	}
	vk.DestroyShaderModule(d.device, native, nil)
}
