// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pass drives drawing with built acceleration structures. Presentation,
// queue submission and the ray tracing pipeline itself are provided by the
// embedding application.
package pass

import (
	"github.com/devblok/tracer/gfx"
)

// Frame is an image to render into, with the semaphore signaled when it is
// available and the one to signal when rendering into it has finished.
type Frame struct {
	Image     gfx.Image
	Index     uint32
	Extent    gfx.Extent3D
	Available gfx.Semaphore
	Finished  gfx.Semaphore
}

// Presenter hands out presentable images and presents them.
type Presenter interface {
	// Acquire returns the next image to render into
	Acquire() (Frame, error)

	// Present queues the frame for presentation once Finished is signaled
	Present(Frame) error
}

// Submitter submits per-frame command buffers.
type Submitter interface {
	// Submit submits cmd after wait is signaled, signals signal when done
	// and returns a fence signaled on completion
	Submit(cmd gfx.CommandBuffer, wait, signal gfx.Semaphore) (gfx.Fence, error)
}

// Tracer records a ray dispatch over the whole extent with the given set
// bound, using a ray tracing pipeline of its own.
type Tracer interface {
	RecordTrace(cmd gfx.CommandBuffer, set gfx.DescriptorSet, extent gfx.Extent3D) error
}
