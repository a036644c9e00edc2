// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// CreateCommandPool implements gfx.CommandDevice.
func (d *Device) CreateCommandPool(queueFamily uint32, flags gfx.CommandPoolFlags) (gfx.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: queueFamily,
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(d.device, &cpci, nil, &pool)); err != nil {
		return 0, errors.Wrap(err, "vk.CreateCommandPool()")
	}
	return gfx.CommandPool(d.commandPools.Insert(&commandPool{handle: pool})), nil
}

// DestroyCommandPool implements gfx.CommandDevice. Buffers still allocated
// from the pool are freed with it.
func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	native, ok := d.commandPools.Remove(uint64(pool))
	if !ok {
		d.log.WithError(unknown("command pool", uint64(pool))).Error("destroy command pool")
		return
	}
	for _, cmd := range native.buffers {
		d.commandBuffers.Remove(uint64(cmd))
	}
	vk.DestroyCommandPool(d.device, native.handle, nil)
}

// AllocateCommandBuffers implements gfx.CommandDevice.
func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, level gfx.CommandBufferLevel, count uint32) ([]gfx.CommandBuffer, error) {
	native, ok := d.commandPools.Get(uint64(pool))
	if !ok {
		return nil, unknown("command pool", uint64(pool))
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        native.handle,
		Level:              vk.CommandBufferLevel(level),
		CommandBufferCount: count,
	}
	buffers := make([]vk.CommandBuffer, count)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &cbai, buffers)); err != nil {
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}

	out := make([]gfx.CommandBuffer, count)
	for idx, buffer := range buffers {
		out[idx] = gfx.CommandBuffer(d.commandBuffers.Insert(commandBuffer{pool: pool, handle: buffer}))
	}
	native.buffers = append(native.buffers, out...)
	return out, nil
}

// FreeCommandBuffers implements gfx.CommandDevice.
func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	native, ok := d.commandPools.Get(uint64(pool))
	if !ok {
		d.log.WithError(unknown("command pool", uint64(pool))).Error("free command buffers")
		return
	}

	freed := make(map[gfx.CommandBuffer]bool, len(buffers))
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, cmd := range buffers {
		if buffer, ok := d.commandBuffers.Remove(uint64(cmd)); ok {
			handles = append(handles, buffer.handle)
			freed[cmd] = true
		}
	}
	if len(handles) == 0 {
		return
	}
	vk.FreeCommandBuffers(d.device, native.handle, uint32(len(handles)), handles)

	kept := native.buffers[:0]
	for _, cmd := range native.buffers {
		if !freed[cmd] {
			kept = append(kept, cmd)
		}
	}
	native.buffers = kept
}

// BeginCommandBuffer implements gfx.CommandDevice.
func (d *Device) BeginCommandBuffer(cmd gfx.CommandBuffer, usage gfx.CommandBufferUsage) error {
	native, ok := d.commandBuffers.Get(uint64(cmd))
	if !ok {
		return unknown("command buffer", uint64(cmd))
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(usage),
	}
	return errors.Wrap(vk.Error(vk.BeginCommandBuffer(native.handle, &cbbi)), "vk.BeginCommandBuffer()")
}

// EndCommandBuffer implements gfx.CommandDevice.
func (d *Device) EndCommandBuffer(cmd gfx.CommandBuffer) error {
	native, ok := d.commandBuffers.Get(uint64(cmd))
	if !ok {
		return unknown("command buffer", uint64(cmd))
	}
	return errors.Wrap(vk.Error(vk.EndCommandBuffer(native.handle)), "vk.EndCommandBuffer()")
}

// QueueSubmit implements gfx.CommandDevice.
func (d *Device) QueueSubmit(queue gfx.Queue, buffers []gfx.CommandBuffer, fence gfx.Fence) error {
	native, ok := d.queues.Get(uint64(queue))
	if !ok {
		return unknown("queue", uint64(queue))
	}
	handles := make([]vk.CommandBuffer, len(buffers))
	for idx, cmd := range buffers {
		buffer, ok := d.commandBuffers.Get(uint64(cmd))
		if !ok {
			return unknown("command buffer", uint64(cmd))
		}
		handles[idx] = buffer.handle
	}
	var signal vk.Fence
	if fence != gfx.NullFence {
		if signal, ok = d.fences.Get(uint64(fence)); !ok {
			return unknown("fence", uint64(fence))
		}
	}

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(handles)),
		PCommandBuffers:    handles,
	}}
	return errors.Wrap(vk.Error(vk.QueueSubmit(native, 1, submit, signal)), "vk.QueueSubmit()")
}

// QueueWaitIdle implements gfx.CommandDevice.
func (d *Device) QueueWaitIdle(queue gfx.Queue) error {
	native, ok := d.queues.Get(uint64(queue))
	if !ok {
		return unknown("queue", uint64(queue))
	}
	return errors.Wrap(vk.Error(vk.QueueWaitIdle(native)), "vk.QueueWaitIdle()")
}

// CreateFence implements gfx.CommandDevice.
func (d *Device) CreateFence() (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var fence vk.Fence
	if err := vk.Error(vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return gfx.NullFence, errors.Wrap(err, "vk.CreateFence()")
	}
	return gfx.Fence(d.fences.Insert(fence)), nil
}

// WaitForFence implements gfx.CommandDevice. A zero timeout waits forever.
func (d *Device) WaitForFence(fence gfx.Fence, timeout time.Duration) error {
	native, ok := d.fences.Get(uint64(fence))
	if !ok {
		return unknown("fence", uint64(fence))
	}
	nanos := uint64(math.MaxUint64)
	if timeout > 0 {
		nanos = uint64(timeout.Nanoseconds())
	}

	ret := vk.WaitForFences(d.device, 1, []vk.Fence{native}, vk.True, nanos)
	if ret == vk.Timeout {
		return errors.Wrapf(gfx.ErrTimeout, "fence %d after %s", fence, timeout)
	}
	return errors.Wrap(vk.Error(ret), "vk.WaitForFences()")
}

// DestroyFence implements gfx.CommandDevice.
func (d *Device) DestroyFence(fence gfx.Fence) {
	native, ok := d.fences.Remove(uint64(fence))
	if !ok {
		d.log.WithError(unknown("fence", uint64(fence))).Error("destroy fence")
		return
	}
	vk.DestroyFence(d.device, native, nil)
}

// CmdPipelineBarrier implements gfx.Recorder.
func (d *Device) CmdPipelineBarrier(cmd gfx.CommandBuffer, src, dst gfx.PipelineStageFlags, barriers []gfx.MemoryBarrier) error {
	native, ok := d.commandBuffers.Get(uint64(cmd))
	if !ok {
		return unknown("command buffer", uint64(cmd))
	}
	vk.CmdPipelineBarrier(native.handle, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		uint32(len(barriers)), memoryBarriers(barriers), 0, nil, 0, nil)
	return nil
}
