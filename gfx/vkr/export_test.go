// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

var (
	Terminated        = terminated
	MissingExtensions = missingExtensions
	ComputeFamily     = computeFamily
	MaxVertex         = maxVertex
	PoolSizes         = poolSizes
	LayoutBindings    = layoutBindings
	MemoryBarriers    = memoryBarriers
)
