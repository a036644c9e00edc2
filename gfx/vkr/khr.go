// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

/*
#cgo LDFLAGS: -lvulkan
#include <stdlib.h>
#include <string.h>
#include <vulkan/vulkan.h>

typedef struct {
	PFN_vkGetAccelerationStructureBuildSizesKHR buildSizes;
	PFN_vkCreateAccelerationStructureKHR create;
	PFN_vkDestroyAccelerationStructureKHR destroy;
	PFN_vkGetAccelerationStructureDeviceAddressKHR address;
	PFN_vkCmdBuildAccelerationStructuresKHR build;
	PFN_vkGetBufferDeviceAddress bufferAddress;
} rtDispatch;

typedef struct {
	uint32_t instances;
	uint32_t flags;
	uint32_t vertexFormat;
	uint32_t indexType;
	uint64_t vertexData;
	uint64_t vertexStride;
	uint32_t maxVertex;
	uint32_t pad;
	uint64_t indexData;
	uint64_t transformData;
	uint64_t instanceData;
} rtGeometry;

static int rtLoad(VkDevice device, rtDispatch* d) {
	d->buildSizes = (PFN_vkGetAccelerationStructureBuildSizesKHR)vkGetDeviceProcAddr(device, "vkGetAccelerationStructureBuildSizesKHR");
	d->create = (PFN_vkCreateAccelerationStructureKHR)vkGetDeviceProcAddr(device, "vkCreateAccelerationStructureKHR");
	d->destroy = (PFN_vkDestroyAccelerationStructureKHR)vkGetDeviceProcAddr(device, "vkDestroyAccelerationStructureKHR");
	d->address = (PFN_vkGetAccelerationStructureDeviceAddressKHR)vkGetDeviceProcAddr(device, "vkGetAccelerationStructureDeviceAddressKHR");
	d->build = (PFN_vkCmdBuildAccelerationStructuresKHR)vkGetDeviceProcAddr(device, "vkCmdBuildAccelerationStructuresKHR");
	d->bufferAddress = (PFN_vkGetBufferDeviceAddress)vkGetDeviceProcAddr(device, "vkGetBufferDeviceAddress");
	if (d->bufferAddress == NULL) {
		d->bufferAddress = (PFN_vkGetBufferDeviceAddress)vkGetDeviceProcAddr(device, "vkGetBufferDeviceAddressKHR");
	}
	return d->buildSizes != NULL && d->create != NULL && d->destroy != NULL &&
		d->address != NULL && d->build != NULL && d->bufferAddress != NULL;
}

static VkResult rtCreateDevice(VkPhysicalDevice physical, uint32_t family, const char** extensions, uint32_t count, VkDevice* out) {
	VkPhysicalDeviceAccelerationStructureFeaturesKHR structures;
	memset(&structures, 0, sizeof(structures));
	structures.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR;
	structures.accelerationStructure = VK_TRUE;

	VkPhysicalDeviceRayTracingPipelineFeaturesKHR pipeline;
	memset(&pipeline, 0, sizeof(pipeline));
	pipeline.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR;
	pipeline.rayTracingPipeline = VK_TRUE;
	pipeline.pNext = &structures;

	VkPhysicalDeviceBufferDeviceAddressFeatures addresses;
	memset(&addresses, 0, sizeof(addresses));
	addresses.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_BUFFER_DEVICE_ADDRESS_FEATURES;
	addresses.bufferDeviceAddress = VK_TRUE;
	addresses.pNext = &pipeline;

	VkPhysicalDeviceFeatures2 features;
	memset(&features, 0, sizeof(features));
	features.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	features.pNext = &addresses;

	float priority = 1.0f;
	VkDeviceQueueCreateInfo queue;
	memset(&queue, 0, sizeof(queue));
	queue.sType = VK_STRUCTURE_TYPE_DEVICE_QUEUE_CREATE_INFO;
	queue.queueFamilyIndex = family;
	queue.queueCount = 1;
	queue.pQueuePriorities = &priority;

	VkDeviceCreateInfo info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_DEVICE_CREATE_INFO;
	info.pNext = &features;
	info.queueCreateInfoCount = 1;
	info.pQueueCreateInfos = &queue;
	info.enabledExtensionCount = count;
	info.ppEnabledExtensionNames = extensions;
	return vkCreateDevice(physical, &info, NULL, out);
}

static void rtLimits(VkPhysicalDevice physical, uint32_t* scratchAlignment, uint64_t* maxInstances) {
	VkPhysicalDeviceAccelerationStructurePropertiesKHR structures;
	memset(&structures, 0, sizeof(structures));
	structures.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_PROPERTIES_KHR;

	VkPhysicalDeviceProperties2 props;
	memset(&props, 0, sizeof(props));
	props.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2;
	props.pNext = &structures;
	vkGetPhysicalDeviceProperties2(physical, &props);

	*scratchAlignment = structures.minAccelerationStructureScratchOffsetAlignment;
	*maxInstances = structures.maxInstanceCount;
}

static VkResult rtAllocateMemory(VkDevice device, uint64_t size, uint32_t typeIndex, uint32_t flags, VkDeviceMemory* out) {
	VkMemoryAllocateFlagsInfo flagsInfo;
	memset(&flagsInfo, 0, sizeof(flagsInfo));
	flagsInfo.sType = VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO;
	flagsInfo.flags = flags;

	VkMemoryAllocateInfo info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO;
	if (flags != 0) {
		info.pNext = &flagsInfo;
	}
	info.allocationSize = size;
	info.memoryTypeIndex = typeIndex;
	return vkAllocateMemory(device, &info, NULL, out);
}

static uint64_t rtBufferAddress(rtDispatch* d, VkDevice device, VkBuffer buffer) {
	VkBufferDeviceAddressInfo info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO;
	info.buffer = buffer;
	return d->bufferAddress(device, &info);
}

static void rtFillGeometry(const rtGeometry* in, VkAccelerationStructureGeometryKHR* out) {
	memset(out, 0, sizeof(*out));
	out->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
	out->flags = in->flags;
	if (in->instances) {
		out->geometryType = VK_GEOMETRY_TYPE_INSTANCES_KHR;
		out->geometry.instances.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR;
		out->geometry.instances.arrayOfPointers = VK_FALSE;
		out->geometry.instances.data.deviceAddress = in->instanceData;
		return;
	}
	out->geometryType = VK_GEOMETRY_TYPE_TRIANGLES_KHR;
	out->geometry.triangles.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_TRIANGLES_DATA_KHR;
	out->geometry.triangles.vertexFormat = in->vertexFormat;
	out->geometry.triangles.vertexData.deviceAddress = in->vertexData;
	out->geometry.triangles.vertexStride = in->vertexStride;
	out->geometry.triangles.maxVertex = in->maxVertex;
	out->geometry.triangles.indexType = in->indexType;
	out->geometry.triangles.indexData.deviceAddress = in->indexData;
	out->geometry.triangles.transformData.deviceAddress = in->transformData;
}

static VkAccelerationStructureGeometryKHR* rtGeometries(const rtGeometry* in, uint32_t count) {
	VkAccelerationStructureGeometryKHR* out = calloc(count, sizeof(VkAccelerationStructureGeometryKHR));
	if (out == NULL) {
		return NULL;
	}
	for (uint32_t i = 0; i < count; i++) {
		rtFillGeometry(&in[i], &out[i]);
	}
	return out;
}

static VkResult rtBuildSizes(rtDispatch* d, VkDevice device, uint32_t level, uint32_t flags,
	const rtGeometry* in, const uint32_t* maxPrimitives, uint32_t count, uint64_t* sizes) {
	VkAccelerationStructureGeometryKHR* geometries = rtGeometries(in, count);
	if (geometries == NULL) {
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}

	VkAccelerationStructureBuildGeometryInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	info.type = level;
	info.flags = flags;
	info.mode = VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR;
	info.geometryCount = count;
	info.pGeometries = geometries;

	VkAccelerationStructureBuildSizesInfoKHR out;
	memset(&out, 0, sizeof(out));
	out.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR;
	d->buildSizes(device, VK_ACCELERATION_STRUCTURE_BUILD_TYPE_DEVICE_KHR, &info, maxPrimitives, &out);
	free(geometries);

	sizes[0] = out.accelerationStructureSize;
	sizes[1] = out.updateScratchSize;
	sizes[2] = out.buildScratchSize;
	return VK_SUCCESS;
}

static VkResult rtCreateStructure(rtDispatch* d, VkDevice device, VkBuffer buffer, uint64_t offset, uint64_t size,
	uint32_t level, VkAccelerationStructureKHR* out) {
	VkAccelerationStructureCreateInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR;
	info.buffer = buffer;
	info.offset = offset;
	info.size = size;
	info.type = level;
	return d->create(device, &info, NULL, out);
}

static void rtDestroyStructure(rtDispatch* d, VkDevice device, VkAccelerationStructureKHR structure) {
	d->destroy(device, structure, NULL);
}

static uint64_t rtStructureAddress(rtDispatch* d, VkDevice device, VkAccelerationStructureKHR structure) {
	VkAccelerationStructureDeviceAddressInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_DEVICE_ADDRESS_INFO_KHR;
	info.accelerationStructure = structure;
	return d->address(device, &info);
}

static VkResult rtCmdBuild(rtDispatch* d, VkCommandBuffer cmd, uint32_t level, uint32_t flags, uint32_t mode,
	VkAccelerationStructureKHR src, VkAccelerationStructureKHR dst, uint64_t scratch,
	const rtGeometry* in, const VkAccelerationStructureBuildRangeInfoKHR* ranges, uint32_t count) {
	VkAccelerationStructureGeometryKHR* geometries = rtGeometries(in, count);
	if (geometries == NULL) {
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}

	VkAccelerationStructureBuildGeometryInfoKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	info.type = level;
	info.flags = flags;
	info.mode = mode;
	info.srcAccelerationStructure = src;
	info.dstAccelerationStructure = dst;
	info.geometryCount = count;
	info.pGeometries = geometries;
	info.scratchData.deviceAddress = scratch;

	d->build(cmd, 1, &info, &ranges);
	free(geometries);
	return VK_SUCCESS;
}

static void rtWriteStructure(VkDevice device, VkDescriptorSet set, uint32_t binding, uint32_t element,
	VkAccelerationStructureKHR structure) {
	VkWriteDescriptorSetAccelerationStructureKHR info;
	memset(&info, 0, sizeof(info));
	info.sType = VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET_ACCELERATION_STRUCTURE_KHR;
	info.accelerationStructureCount = 1;
	info.pAccelerationStructures = &structure;

	VkWriteDescriptorSet write;
	memset(&write, 0, sizeof(write));
	write.sType = VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET;
	write.pNext = &info;
	write.dstSet = set;
	write.dstBinding = binding;
	write.dstArrayElement = element;
	write.descriptorCount = 1;
	write.descriptorType = VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR;
	vkUpdateDescriptorSets(device, 1, &write, 0, NULL);
}
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	vk "github.com/vulkan-go/vulkan"
)

// structure is a native acceleration structure and the buffer it lives in.
type structure struct {
	handle C.VkAccelerationStructureKHR
	level  gfx.AccelerationStructureLevel
}

// khr calls the extension entry points vulkan-go does not bind.
type khr struct {
	dispatch C.rtDispatch
}

func result(r C.VkResult) error {
	return vk.Error(vk.Result(r))
}

func nativeDevice(device vk.Device) C.VkDevice {
	return C.VkDevice(unsafe.Pointer(device))
}

func nativeBuffer(buffer vk.Buffer) C.VkBuffer {
	return C.VkBuffer(unsafe.Pointer(buffer))
}

func createDevice(physical vk.PhysicalDevice, family uint32, extensions []string) (vk.Device, error) {
	names := make([]*C.char, len(extensions))
	for idx, ext := range extensions {
		names[idx] = C.CString(ext)
	}
	defer func() {
		for _, name := range names {
			C.free(unsafe.Pointer(name))
		}
	}()

	var namesPtr **C.char
	if len(names) > 0 {
		namesPtr = &names[0]
	}

	var device C.VkDevice
	if err := result(C.rtCreateDevice(C.VkPhysicalDevice(unsafe.Pointer(physical)), C.uint32_t(family),
		namesPtr, C.uint32_t(len(names)), &device)); err != nil {
		return nil, errors.Wrap(err, "vkCreateDevice()")
	}
	return vk.Device(unsafe.Pointer(device)), nil
}

func structureLimits(physical vk.PhysicalDevice) gfx.Limits {
	var (
		alignment C.uint32_t
		instances C.uint64_t
	)
	C.rtLimits(C.VkPhysicalDevice(unsafe.Pointer(physical)), &alignment, &instances)
	return gfx.Limits{
		MinScratchOffsetAlignment: uint32(alignment),
		MaxInstanceCount:          uint64(instances),
	}
}

func allocateMemory(device vk.Device, size uint64, typeIndex uint32, flags gfx.MemoryAllocateFlags) (vk.DeviceMemory, error) {
	var mem C.VkDeviceMemory
	r := C.rtAllocateMemory(nativeDevice(device), C.uint64_t(size), C.uint32_t(typeIndex), C.uint32_t(flags), &mem)
	if r == C.VK_ERROR_OUT_OF_DEVICE_MEMORY {
		return nil, errors.Mark(result(r), gfx.ErrOutOfMemory)
	}
	if err := result(r); err != nil {
		return nil, err
	}
	return vk.DeviceMemory(unsafe.Pointer(mem)), nil
}

func (k *khr) load(device vk.Device) error {
	if C.rtLoad(nativeDevice(device), &k.dispatch) == 0 {
		return errors.New("vkGetDeviceProcAddr(): acceleration structure entry points are missing")
	}
	return nil
}

func (k *khr) bufferAddress(device vk.Device, buffer vk.Buffer) uint64 {
	return uint64(C.rtBufferAddress(&k.dispatch, nativeDevice(device), nativeBuffer(buffer)))
}

func (k *khr) buildSizes(device vk.Device, level gfx.AccelerationStructureLevel, flags gfx.BuildFlags, infos []gfx.GeometryInfo) (gfx.BuildSizes, error) {
	geometries := make([]C.rtGeometry, len(infos))
	primitives := make([]C.uint32_t, len(infos))
	for idx, info := range infos {
		geometries[idx] = geometryInfo(info)
		primitives[idx] = C.uint32_t(gfx.MaxPrimitiveCount(info))
	}

	var (
		sizes   [3]C.uint64_t
		geomPtr *C.rtGeometry
		primPtr *C.uint32_t
	)
	if len(infos) > 0 {
		geomPtr, primPtr = &geometries[0], &primitives[0]
	}
	if err := result(C.rtBuildSizes(&k.dispatch, nativeDevice(device), C.uint32_t(level), C.uint32_t(flags),
		geomPtr, primPtr, C.uint32_t(len(infos)), &sizes[0])); err != nil {
		return gfx.BuildSizes{}, err
	}
	return gfx.BuildSizes{
		AccelerationStructureSize: uint64(sizes[0]),
		UpdateScratchSize:         uint64(sizes[1]),
		BuildScratchSize:          uint64(sizes[2]),
	}, nil
}

func (k *khr) create(device vk.Device, buffer vk.Buffer, info gfx.AccelerationStructureCreateInfo) (structure, error) {
	var handle C.VkAccelerationStructureKHR
	if err := result(C.rtCreateStructure(&k.dispatch, nativeDevice(device), nativeBuffer(buffer),
		C.uint64_t(info.Offset), C.uint64_t(info.Size), C.uint32_t(info.Level), &handle)); err != nil {
		return structure{}, err
	}
	return structure{handle: handle, level: info.Level}, nil
}

func (k *khr) destroy(device vk.Device, s structure) {
	C.rtDestroyStructure(&k.dispatch, nativeDevice(device), s.handle)
}

func (k *khr) structureAddress(device vk.Device, s structure) uint64 {
	return uint64(C.rtStructureAddress(&k.dispatch, nativeDevice(device), s.handle))
}

func (k *khr) cmdBuild(cmd vk.CommandBuffer, info gfx.BuildGeometryInfo, src, dst structure, ranges []gfx.BuildRange) error {
	geometries := make([]C.rtGeometry, len(info.Geometries))
	for idx, geom := range info.Geometries {
		geometries[idx] = geometry(geom)
	}
	native := make([]C.VkAccelerationStructureBuildRangeInfoKHR, len(ranges))
	for idx, r := range ranges {
		native[idx].primitiveCount = C.uint32_t(r.PrimitiveCount)
		native[idx].primitiveOffset = C.uint32_t(r.PrimitiveOffset)
		native[idx].firstVertex = C.uint32_t(r.FirstVertex)
		native[idx].transformOffset = C.uint32_t(r.TransformOffset)
	}

	var (
		geomPtr  *C.rtGeometry
		rangePtr *C.VkAccelerationStructureBuildRangeInfoKHR
	)
	if len(geometries) > 0 {
		geomPtr, rangePtr = &geometries[0], &native[0]
	}
	return result(C.rtCmdBuild(&k.dispatch, C.VkCommandBuffer(unsafe.Pointer(cmd)),
		C.uint32_t(info.Level), C.uint32_t(info.Flags), C.uint32_t(info.Mode),
		src.handle, dst.handle, C.uint64_t(info.Scratch), geomPtr, rangePtr, C.uint32_t(len(geometries))))
}

func writeStructure(device vk.Device, set vk.DescriptorSet, binding, element uint32, s structure) {
	C.rtWriteStructure(nativeDevice(device), C.VkDescriptorSet(unsafe.Pointer(set)),
		C.uint32_t(binding), C.uint32_t(element), s.handle)
}

func geometryInfo(info gfx.GeometryInfo) C.rtGeometry {
	var g C.rtGeometry
	switch i := info.(type) {
	case gfx.TrianglesInfo:
		g.vertexFormat = C.uint32_t(i.VertexFormat)
		g.indexType = C.uint32_t(i.IndexType)
		g.maxVertex = C.uint32_t(maxVertex(i.MaxVertexCount))
	case gfx.InstancesInfo:
		g.instances = 1
	}
	return g
}

func geometry(geom gfx.Geometry) C.rtGeometry {
	g := geometryInfo(geom.Info())
	switch t := geom.(type) {
	case gfx.Triangles:
		g.flags = C.uint32_t(t.Flags)
		g.vertexData = C.uint64_t(t.VertexData)
		g.vertexStride = C.uint64_t(t.VertexStride)
		g.indexData = C.uint64_t(t.IndexData)
		g.transformData = C.uint64_t(t.TransformData)
	case gfx.Instances:
		g.flags = C.uint32_t(t.Flags)
		g.instanceData = C.uint64_t(t.Data)
	}
	return g
}
