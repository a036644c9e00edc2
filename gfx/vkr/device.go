// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"io/ioutil"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
	"github.com/devblok/tracer/gfx/registry"
	"github.com/devblok/tracer/gfx/shader"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// DeviceConfiguration selects a physical device and what to enable on it.
type DeviceConfiguration struct {
	// PhysicalDevice indexes Instance.PhysicalDevicesInfo.
	PhysicalDevice int
	Extensions     []string
	Log            logrus.FieldLogger
}

var (
	_ gfx.Device        = (*Device)(nil)
	_ shader.Device     = (*Device)(nil)
	_ descriptor.Writer = (*Device)(nil)
)

type image struct {
	handle vk.Image
	view   vk.ImageView
	format vk.Format
}

type commandPool struct {
	handle  vk.CommandPool
	buffers []gfx.CommandBuffer
}

type commandBuffer struct {
	pool   gfx.CommandPool
	handle vk.CommandBuffer
}

type descriptorPool struct {
	handle vk.DescriptorPool
	sets   []gfx.DescriptorSet
}

// Device is a logical vulkan device with a single compute capable queue.
// Every native object it creates is kept in a slab until destroyed, so
// Destroy can tear down whatever the caller leaked.
type Device struct {
	log logrus.FieldLogger

	physical vk.PhysicalDevice
	device   vk.Device
	khr      khr
	family   uint32
	queue    gfx.Queue

	memoryProperties gfx.MemoryProperties
	limits           gfx.Limits

	memories        registry.Slab[vk.DeviceMemory]
	buffers         registry.Slab[vk.Buffer]
	images          registry.Slab[*image]
	structures      registry.Slab[structure]
	shaders         registry.Slab[vk.ShaderModule]
	layouts         registry.Slab[vk.DescriptorSetLayout]
	descriptorPools registry.Slab[*descriptorPool]
	sets            registry.Slab[vk.DescriptorSet]
	fences          registry.Slab[vk.Fence]
	commandPools    registry.Slab[*commandPool]
	commandBuffers  registry.Slab[commandBuffer]
	queues          registry.Slab[vk.Queue]
}

// NewDevice creates a logical device on one of the instance's physical
// devices with the ray tracing feature chain enabled.
func NewDevice(instance *Instance, cfg DeviceConfiguration) (*Device, error) {
	if cfg.PhysicalDevice < 0 || cfg.PhysicalDevice >= len(instance.devices) {
		return nil, errors.Newf("physical device %d out of %d", cfg.PhysicalDevice, len(instance.devices))
	}
	log := cfg.Log
	if log == nil {
		discard := logrus.New()
		discard.Out = ioutil.Discard
		log = discard
	}
	physical := instance.devices[cfg.PhysicalDevice]

	available, err := deviceExtensions(physical)
	if err != nil {
		return nil, err
	}
	if missing := missingExtensions(available, cfg.Extensions); len(missing) > 0 {
		return nil, errors.Newf("device extensions not supported: %v", missing)
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &familyCount, families)
	flags := make([]vk.QueueFlags, familyCount)
	for idx := range families {
		families[idx].Deref()
		flags[idx] = families[idx].QueueFlags
	}
	family, ok := computeFamily(flags)
	if !ok {
		return nil, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no compute queue family")
	}

	device, err := createDevice(physical, family, cfg.Extensions)
	if err != nil {
		return nil, err
	}

	d := &Device{
		log:      log,
		physical: physical,
		device:   device,
		family:   family,
		limits:   structureLimits(physical),
	}
	if err := d.khr.load(device); err != nil {
		vk.DestroyDevice(device, nil)
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, family, 0, &queue)
	d.queue = gfx.Queue(d.queues.Insert(queue))

	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &props)
	props.Deref()
	d.memoryProperties = memoryProperties(props)

	log.WithFields(logrus.Fields{
		"family":            family,
		"scratchAlignment":  d.limits.MinScratchOffsetAlignment,
		"memoryTypes":       len(d.memoryProperties.Types),
		"enabledExtensions": len(cfg.Extensions),
	}).Info("device created")
	return d, nil
}

// Queue returns the device queue.
func (d *Device) Queue() gfx.Queue {
	return d.queue
}

// QueueFamily returns the family index of the device queue.
func (d *Device) QueueFamily() uint32 {
	return d.family
}

// Limits implements gfx.Device.
func (d *Device) Limits() gfx.Limits {
	return d.limits
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return errors.Wrap(vk.Error(vk.DeviceWaitIdle(d.device)), "vk.DeviceWaitIdle()")
}

// Destroy waits for the device to go idle, destroys every object still
// alive in dependency order and then the device itself.
func (d *Device) Destroy() {
	if err := d.WaitIdle(); err != nil {
		d.log.WithError(err).Error("destroying a busy device")
	}

	counts := logrus.Fields{}
	counts["structures"] = d.structures.Drain(func(_ uint64, s structure) {
		d.khr.destroy(d.device, s)
	})
	counts["buffers"] = d.buffers.Drain(func(_ uint64, buf vk.Buffer) {
		vk.DestroyBuffer(d.device, buf, nil)
	})
	counts["images"] = d.images.Drain(func(_ uint64, img *image) {
		d.destroyImage(img)
	})
	counts["shaders"] = d.shaders.Drain(func(_ uint64, module vk.ShaderModule) {
		vk.DestroyShaderModule(d.device, module, nil)
	})
	d.sets.Drain(func(uint64, vk.DescriptorSet) {})
	counts["descriptorPools"] = d.descriptorPools.Drain(func(_ uint64, pool *descriptorPool) {
		vk.DestroyDescriptorPool(d.device, pool.handle, nil)
	})
	counts["layouts"] = d.layouts.Drain(func(_ uint64, layout vk.DescriptorSetLayout) {
		vk.DestroyDescriptorSetLayout(d.device, layout, nil)
	})
	counts["fences"] = d.fences.Drain(func(_ uint64, fence vk.Fence) {
		vk.DestroyFence(d.device, fence, nil)
	})
	d.commandBuffers.Drain(func(uint64, commandBuffer) {})
	counts["commandPools"] = d.commandPools.Drain(func(_ uint64, pool *commandPool) {
		vk.DestroyCommandPool(d.device, pool.handle, nil)
	})
	counts["memories"] = d.memories.Drain(func(_ uint64, mem vk.DeviceMemory) {
		vk.FreeMemory(d.device, mem, nil)
	})
	d.queues.Drain(func(uint64, vk.Queue) {})

	vk.DestroyDevice(d.device, nil)
	d.log.WithFields(counts).Debug("device destroyed")
}

func unknown(kind string, key uint64) error {
	return errors.Newf("unknown or destroyed %s handle %#x", kind, key)
}
