// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// PipelineStageFlags match VkPipelineStageFlagBits.
type PipelineStageFlags uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe                  PipelineStageFlags = 0x00000001
	PipelineStageComputeShader              PipelineStageFlags = 0x00000800
	PipelineStageTransfer                   PipelineStageFlags = 0x00001000
	PipelineStageBottomOfPipe               PipelineStageFlags = 0x00002000
	PipelineStageHost                       PipelineStageFlags = 0x00004000
	PipelineStageAllCommands                PipelineStageFlags = 0x00010000
	PipelineStageRayTracingShader           PipelineStageFlags = 0x00200000
	PipelineStageAccelerationStructureBuild PipelineStageFlags = 0x02000000
)

// AccessFlags match VkAccessFlagBits.
type AccessFlags uint32

// Access flags.
const (
	AccessShaderRead                 AccessFlags = 0x00000020
	AccessShaderWrite                AccessFlags = 0x00000040
	AccessTransferRead               AccessFlags = 0x00000800
	AccessTransferWrite              AccessFlags = 0x00001000
	AccessHostWrite                  AccessFlags = 0x00004000
	AccessAccelerationStructureRead  AccessFlags = 0x00200000
	AccessAccelerationStructureWrite AccessFlags = 0x00400000
)

// MemoryBarrier is a global memory barrier.
type MemoryBarrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// CommandPoolFlags match VkCommandPoolCreateFlagBits.
type CommandPoolFlags uint32

// Command pool flags.
const (
	CommandPoolTransient          CommandPoolFlags = 0x1
	CommandPoolResetCommandBuffer CommandPoolFlags = 0x2
)

// CommandBufferLevel matches VkCommandBufferLevel.
type CommandBufferLevel uint32

// Command buffer levels.
const (
	CommandBufferLevelPrimary   CommandBufferLevel = 0
	CommandBufferLevelSecondary CommandBufferLevel = 1
)

// CommandBufferUsage matches VkCommandBufferUsageFlagBits.
type CommandBufferUsage uint32

// CommandBufferOneTimeSubmit marks a buffer that is submitted once.
const CommandBufferOneTimeSubmit CommandBufferUsage = 0x1
