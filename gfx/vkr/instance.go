// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the ray tracing device on vulkan.
package vkr

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/core"
	vk "github.com/vulkan-go/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// InstanceConfiguration describes what the instance is created with.
type InstanceConfiguration struct {
	AppName    string
	Debug      bool
	Extensions []string
	Layers     []string
}

// PhysicalDeviceInfo describes a rendering device.
type PhysicalDeviceInfo struct {
	ID            int      `json:"id"`
	VendorID      int      `json:"vendorId"`
	DriverVersion int      `json:"driverVersion"`
	Name          string   `json:"name"`
	Invalid       bool     `json:"invalid"`
	Extensions    []string `json:"extensions"`
	Layers        []string `json:"layers"`
	Memory        uint64   `json:"memory"`

	// RayTracing is set when every required device extension is present.
	RayTracing                bool   `json:"rayTracing"`
	MinScratchOffsetAlignment uint32 `json:"minScratchOffsetAlignment,omitempty"`
}

// Instance is a vulkan instance and its physical devices.
type Instance struct {
	configuration InstanceConfiguration

	instance vk.Instance
	surface  vk.Surface
	devices  []vk.PhysicalDevice
}

// NewInstance creates a vulkan instance. procAddr is the loader's
// vkGetInstanceProcAddr, as handed out by a windowing library, or nil to
// use the system loader.
func NewInstance(cfg InstanceConfiguration, procAddr unsafe.Pointer) (*Instance, error) {
	if cfg.Debug {
		cfg.Layers = append(cfg.Layers, validationLayer)
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	extensions := terminated(cfg.Extensions)
	layers := terminated(cfg.Layers)
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 2, 0),
		ApplicationVersion: vk.MakeVersion(core.VersionMajor, core.VersionMinor, core.VersionPatch),
		PApplicationName:   cfg.AppName + "\x00",
		EngineVersion:      vk.MakeVersion(core.VersionMajor, core.VersionMinor, core.VersionPatch),
		PEngineName:        core.EngineName + "\x00",
	}
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateInstance()")
	}
	vk.InitInstance(instance)

	devices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	return &Instance{
		configuration: cfg,
		instance:      instance,
		devices:       devices,
	}, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumeratePhysicalDevices()")
	}
	return devices, nil
}

func deviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceExtensionProperties()")
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, props)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceExtensionProperties()")
	}
	names := make([]string, 0, len(props))
	for _, ext := range props {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

func deviceLayers(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceLayerProperties()")
	}
	props := make([]vk.LayerProperties, count)
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &count, props)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceLayerProperties()")
	}
	names := make([]string, 0, len(props))
	for _, layer := range props {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// PhysicalDevicesInfo reports every physical device. A device whose
// properties cannot be enumerated is marked invalid.
func (v *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.devices))
	for i, device := range v.devices {
		extensions, err := deviceExtensions(device)
		if err != nil {
			pdi[i].Invalid = true
		}
		pdi[i].Extensions = extensions

		layers, err := deviceLayers(device)
		if err != nil {
			pdi[i].Invalid = true
		}
		pdi[i].Layers = layers

		var memoryProps vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(device, &memoryProps)
		memoryProps.Deref()
		for _, heap := range memoryProperties(memoryProps).Heaps {
			pdi[i].Memory += heap.Size
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()
		pdi[i].ID = int(props.DeviceID)
		pdi[i].VendorID = int(props.VendorID)
		pdi[i].Name = vk.ToString(props.DeviceName[:])
		pdi[i].DriverVersion = int(props.DriverVersion)

		pdi[i].RayTracing = len(missingExtensions(extensions, core.RequiredDeviceExtensions)) == 0
		if pdi[i].RayTracing {
			pdi[i].MinScratchOffsetAlignment = structureLimits(device).MinScratchOffsetAlignment
		}
	}
	return pdi
}

// Handle returns the native instance, for surface creation.
func (v *Instance) Handle() vk.Instance {
	return v.instance
}

// SetSurface keeps a surface created by a windowing library. It is
// destroyed with the instance.
func (v *Instance) SetSurface(surface unsafe.Pointer) {
	v.surface = vk.SurfaceFromPointer(uintptr(surface))
}

// Extensions returns the enabled instance extensions.
func (v *Instance) Extensions() []string {
	return v.configuration.Extensions
}

// Destroy destroys the surface and the instance. Devices must be
// destroyed first.
func (v *Instance) Destroy() {
	if v.surface != vk.NullSurface {
		vk.DestroySurface(v.instance, v.surface, nil)
	}
	v.devices = nil
	vk.DestroyInstance(v.instance, nil)
}
