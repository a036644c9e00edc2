// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package accel builds bottom and top level acceleration structures.
//
// A Builder goes through Empty, BlasBuilt and TlasBuilt. The bottom level
// set is built once as a single batch, the top level structure is built
// once and then only updated in place. Every build blocks until the device
// has finished it.
package accel

import (
	"io/ioutil"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/command"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/gfx/res"
)

// ScratchPolicy decides how a batch of bottom level builds shares scratch memory.
type ScratchPolicy int

// Scratch policies.
const (
	// ScratchShared allocates one scratch region as large as the largest
	// build and relies on the barrier after each build to serialize them.
	ScratchShared ScratchPolicy = iota
	// ScratchPerEntry gives every build its own region of one scratch buffer.
	ScratchPerEntry
)

func (p ScratchPolicy) String() string {
	if p == ScratchPerEntry {
		return "per-entry"
	}
	return "shared"
}

// ParseScratchPolicy parses the String form of a policy.
func ParseScratchPolicy(s string) (ScratchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared":
		return ScratchShared, nil
	case "per-entry", "perentry":
		return ScratchPerEntry, nil
	}
	return ScratchShared, errors.Newf("unknown scratch policy %q", s)
}

// State of a Builder.
type State int

// Builder states.
const (
	StateEmpty State = iota
	StateBlasBuilt
	StateTlasBuilt
)

func (s State) String() string {
	switch s {
	case StateBlasBuilt:
		return "blas-built"
	case StateTlasBuilt:
		return "tlas-built"
	}
	return "empty"
}

// Option configures a Builder.
type Option func(*Builder)

// WithScratchPolicy sets how bottom level builds share scratch memory.
func WithScratchPolicy(policy ScratchPolicy) Option {
	return func(b *Builder) {
		b.policy = policy
	}
}

// WithWaitTimeout bounds the wait for every build submission.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(b *Builder) {
		b.timeout = timeout
	}
}

// WithLogger sets the logger builds are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBuilder creates an empty builder submitting to queue.
func NewBuilder(device gfx.Device, alloc *mem.Allocator, queue gfx.Queue, queueFamily uint32, opts ...Option) *Builder {
	discard := logrus.New()
	discard.Out = ioutil.Discard

	b := &Builder{
		device: device,
		alloc:  alloc,
		queue:  queue,
		family: queueFamily,
		limits: device.Limits(),
		log:    discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.limits.MinScratchOffsetAlignment == 0 {
		b.limits.MinScratchOffsetAlignment = 1
	}
	return b
}

// Builder owns a set of bottom level structures and at most one top level
// structure referencing them. It is not safe for concurrent use.
type Builder struct {
	device gfx.Device
	alloc  *mem.Allocator
	queue  gfx.Queue
	family uint32
	limits gfx.Limits

	policy  ScratchPolicy
	timeout time.Duration
	log     logrus.FieldLogger

	blas      []*BlasEntry
	tlas      *Tlas
	instances *res.Buffer

	parked []*inflight
}

// inflight is what a build whose wait failed still hands to the device.
// It is released once the pool has seen the submission complete.
type inflight struct {
	pool       *command.Pool
	scratch    *res.Buffer
	structures []*Structure
	buffers    []*res.Buffer
}

// park keeps a submitted build alive instead of rolling it back.
func (b *Builder) park(f *inflight) {
	b.parked = append(b.parked, f)
	b.log.WithFields(logrus.Fields{
		"structures": len(f.structures),
		"parked":     len(b.parked),
	}).Warn("build did not complete in time, keeping its resources")
}

// settle waits for parked builds and releases what they used.
func (b *Builder) settle() error {
	for len(b.parked) > 0 {
		f := b.parked[0]
		if err := f.pool.Wait(); err != nil {
			return errors.Wrap(err, "waiting for a parked build")
		}
		f.pool.Destroy()
		var err error
		if f.scratch != nil {
			err = errors.CombineErrors(err, f.scratch.Release())
		}
		for _, s := range f.structures {
			err = errors.CombineErrors(err, s.release(b.device))
		}
		for _, buf := range f.buffers {
			err = errors.CombineErrors(err, buf.Release())
		}
		b.parked = b.parked[1:]
		if err != nil {
			b.log.WithError(err).Error("releasing a parked build")
		}
	}
	b.parked = nil
	return nil
}

// State returns the current builder state.
func (b *Builder) State() State {
	switch {
	case b.tlas != nil:
		return StateTlasBuilt
	case len(b.blas) > 0:
		return StateBlasBuilt
	}
	return StateEmpty
}

// BlasCount returns the number of built bottom level structures.
func (b *Builder) BlasCount() int {
	return len(b.blas)
}

// Blas returns the entry with the given id.
func (b *Builder) Blas(id uint32) (*BlasEntry, error) {
	if int(id) >= len(b.blas) {
		return nil, errors.Wrapf(gfx.ErrBlasIndexOutOfRange, "blas %d of %d", id, len(b.blas))
	}
	return b.blas[id], nil
}

// Tlas returns the top level structure.
func (b *Builder) Tlas() (*Tlas, error) {
	if b.tlas == nil {
		return nil, errors.Wrap(gfx.ErrNotBuilt, "tlas")
	}
	return b.tlas, nil
}

// Release destroys the top level structure, its instance buffer and then
// every bottom level structure, leaving the builder empty. Builds that did
// not complete in time are waited for first. The caller must make sure the
// device no longer uses the rest.
func (b *Builder) Release() error {
	if err := b.settle(); err != nil {
		return err
	}
	var err error
	if b.tlas != nil {
		err = errors.CombineErrors(err, b.tlas.structure.release(b.device))
		b.tlas = nil
	}
	if b.instances != nil {
		err = errors.CombineErrors(err, b.instances.Release())
		b.instances = nil
	}
	for _, entry := range b.blas {
		err = errors.CombineErrors(err, entry.structure.release(b.device))
	}
	b.log.WithField("blas", len(b.blas)).Debug("released acceleration structures")
	b.blas = nil
	return err
}

// newPool creates the transient pool one build is submitted through.
func (b *Builder) newPool() (*command.Pool, error) {
	return command.NewPool(b.device, b.queue, b.family, gfx.CommandPoolTransient, command.WithWaitTimeout(b.timeout))
}

// newScratch allocates a device addressable scratch buffer aligned for builds.
func (b *Builder) newScratch(size uint64) (*res.Buffer, gfx.DeviceAddress, error) {
	scratch, err := res.NewBufferWithInfo(b.device, b.alloc, gfx.BufferInfo{
		Align:  uint64(b.limits.MinScratchOffsetAlignment) - 1,
		Size:   size,
		Usage:  gfx.BufferUsageStorage,
		Memory: gfx.MemoryFastDeviceAccess | gfx.MemoryDeviceAddress,
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "scratch buffer")
	}
	addr, _ := scratch.DeviceAddress()
	return scratch, addr, nil
}

// newStructure allocates storage for and creates one acceleration structure.
func (b *Builder) newStructure(level gfx.AccelerationStructureLevel, sizes gfx.BuildSizes) (*Structure, error) {
	storage, err := res.NewBuffer(b.device, b.alloc, sizes.AccelerationStructureSize,
		gfx.BufferUsageAccelerationStructureStorage,
		gfx.MemoryFastDeviceAccess|gfx.MemoryDeviceAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "%s level storage", level)
	}

	handle, err := b.device.CreateAccelerationStructure(gfx.AccelerationStructureCreateInfo{
		Buffer: storage.Handle(),
		Offset: 0,
		Size:   sizes.AccelerationStructureSize,
		Level:  level,
	})
	if err != nil {
		storage.Release()
		return nil, errors.Wrap(err, "vk.CreateAccelerationStructureKHR()")
	}

	address, err := b.device.AccelerationStructureDeviceAddress(handle)
	if err != nil {
		b.device.DestroyAccelerationStructure(handle)
		storage.Release()
		return nil, errors.Wrap(err, "vk.GetAccelerationStructureDeviceAddressKHR()")
	}

	return &Structure{
		handle:  handle,
		buffer:  storage,
		address: address,
		sizes:   sizes,
		level:   level,
	}, nil
}

// Structure is a created acceleration structure with the buffer it lives in.
type Structure struct {
	handle  gfx.AccelerationStructure
	buffer  *res.Buffer
	address gfx.DeviceAddress
	sizes   gfx.BuildSizes
	level   gfx.AccelerationStructureLevel
}

// Handle returns the device handle.
func (s *Structure) Handle() gfx.AccelerationStructure {
	return s.handle
}

// DeviceAddress returns the address instances and shaders refer to it by.
func (s *Structure) DeviceAddress() gfx.DeviceAddress {
	return s.address
}

// Buffer returns the storage buffer.
func (s *Structure) Buffer() *res.Buffer {
	return s.buffer
}

// Sizes returns the sizes queried for the structure.
func (s *Structure) Sizes() gfx.BuildSizes {
	return s.sizes
}

// Level returns whether this is a top or bottom level structure.
func (s *Structure) Level() gfx.AccelerationStructureLevel {
	return s.level
}

func (s *Structure) release(device gfx.AccelerationStructureDevice) error {
	device.DestroyAccelerationStructure(s.handle)
	return s.buffer.Release()
}

func alignUp(n, alignment uint64) uint64 {
	return (n + alignment - 1) / alignment * alignment
}

// InstanceBuffer returns the buffer holding the instances of the top level
// structure, or nil before it is built.
func (b *Builder) InstanceBuffer() *res.Buffer {
	return b.instances
}
