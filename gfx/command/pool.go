// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package command runs one-shot GPU work through transient command pools.
package command

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/devblok/tracer/gfx"
)

// Option configures a Pool.
type Option func(*Pool)

// WithWaitTimeout bounds SubmitAndWait. Zero waits for the queue to idle
// without a bound.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		p.timeout = timeout
	}
}

// NewPool creates a command pool for the queue family.
func NewPool(device gfx.CommandDevice, queue gfx.Queue, queueFamily uint32, flags gfx.CommandPoolFlags, opts ...Option) (*Pool, error) {
	handle, err := device.CreateCommandPool(queueFamily, flags)
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateCommandPool()")
	}
	p := &Pool{
		device:    device,
		queue:     queue,
		family:    queueFamily,
		handle:    handle,
		recording: map[gfx.CommandBuffer]bool{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Pool is a transient command pool bound to one queue.
type Pool struct {
	device gfx.CommandDevice
	queue  gfx.Queue
	family uint32
	handle gfx.CommandPool

	recording map[gfx.CommandBuffer]bool
	timeout   time.Duration
	destroyed bool

	// pending is the fence of a submission whose wait failed, the device
	// may still be executing inflight.
	pending  gfx.Fence
	inflight []gfx.CommandBuffer
}

// Handle returns the device pool handle.
func (p *Pool) Handle() gfx.CommandPool {
	return p.handle
}

// QueueFamily returns the queue family the pool allocates for.
func (p *Pool) QueueFamily() uint32 {
	return p.family
}

// Allocate allocates count command buffers of the given level.
func (p *Pool) Allocate(level gfx.CommandBufferLevel, count uint32) ([]gfx.CommandBuffer, error) {
	if p.destroyed {
		return nil, errors.Wrap(gfx.ErrReleased, "command pool")
	}
	buffers, err := p.device.AllocateCommandBuffers(p.handle, level, count)
	if err != nil {
		return nil, errors.Wrap(err, "vk.AllocateCommandBuffers()")
	}
	return buffers, nil
}

// Begin starts recording a buffer for a single submission.
func (p *Pool) Begin(cmd gfx.CommandBuffer) error {
	if err := p.device.BeginCommandBuffer(cmd, gfx.CommandBufferOneTimeSubmit); err != nil {
		return errors.Wrap(err, "vk.BeginCommandBuffer()")
	}
	p.recording[cmd] = true
	return nil
}

// Submit ends recording on every buffer still open and submits them
// all in one batch without waiting.
func (p *Pool) Submit(buffers []gfx.CommandBuffer) error {
	return p.submit(buffers, gfx.NullFence)
}

func (p *Pool) submit(buffers []gfx.CommandBuffer, fence gfx.Fence) error {
	if p.destroyed {
		return errors.Wrap(gfx.ErrReleased, "command pool")
	}
	if err := p.Wait(); err != nil {
		return err
	}
	for _, cmd := range buffers {
		if !p.recording[cmd] {
			continue
		}
		if err := p.device.EndCommandBuffer(cmd); err != nil {
			return errors.Wrap(err, "vk.EndCommandBuffer()")
		}
		delete(p.recording, cmd)
	}
	if err := p.device.QueueSubmit(p.queue, buffers, fence); err != nil {
		return errors.Wrap(err, "vk.QueueSubmit()")
	}
	return nil
}

// SubmitAndWait submits the buffers, blocks until they completed and
// frees them back to the pool. With a wait timeout set, completion is
// tracked with a fence and gfx.ErrTimeout is returned when it expires.
// The submission then stays pending: its fence and buffers are kept until
// Wait or Destroy sees it complete.
func (p *Pool) SubmitAndWait(buffers []gfx.CommandBuffer) error {
	if p.timeout <= 0 {
		if err := p.submit(buffers, gfx.NullFence); err != nil {
			return err
		}
		if err := p.device.QueueWaitIdle(p.queue); err != nil {
			return errors.Wrap(err, "vk.QueueWaitIdle()")
		}
		p.device.FreeCommandBuffers(p.handle, buffers)
		return nil
	}

	if err := p.Wait(); err != nil {
		return err
	}
	fence, err := p.device.CreateFence()
	if err != nil {
		return errors.Wrap(err, "vk.CreateFence()")
	}
	if err := p.submit(buffers, fence); err != nil {
		p.device.DestroyFence(fence)
		return err
	}
	if err := p.device.WaitForFence(fence, p.timeout); err != nil {
		p.pending, p.inflight = fence, buffers
		if errors.Is(err, gfx.ErrTimeout) {
			return errors.Wrapf(err, "waiting %s for submission", p.timeout)
		}
		return errors.Wrap(err, "vk.WaitForFences()")
	}
	p.device.DestroyFence(fence)
	p.device.FreeCommandBuffers(p.handle, buffers)
	return nil
}

// Pending reports whether a submission whose wait failed may still be
// executing.
func (p *Pool) Pending() bool {
	return p.pending != gfx.NullFence
}

// Wait blocks without a bound until the queue is idle when a submission
// is pending, then frees its buffers and fence.
func (p *Pool) Wait() error {
	if !p.Pending() {
		return nil
	}
	if err := p.device.QueueWaitIdle(p.queue); err != nil {
		return errors.Wrap(err, "vk.QueueWaitIdle()")
	}
	p.device.FreeCommandBuffers(p.handle, p.inflight)
	p.device.DestroyFence(p.pending)
	p.pending, p.inflight = gfx.NullFence, nil
	return nil
}

// Destroy destroys the pool and every buffer allocated from it, after
// waiting for a pending submission.
func (p *Pool) Destroy() {
	if p.destroyed {
		return
	}
	if err := p.Wait(); err != nil {
		// the device is lost and runs nothing anymore
		p.device.DestroyFence(p.pending)
		p.pending, p.inflight = gfx.NullFence, nil
	}
	p.destroyed = true
	p.recording = map[gfx.CommandBuffer]bool{}
	p.device.DestroyCommandPool(p.handle)
}
