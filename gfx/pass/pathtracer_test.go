// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pass_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/accel"
	"github.com/devblok/tracer/gfx/descriptor"
	"github.com/devblok/tracer/gfx/gfxtest"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/gfx/pass"
	"github.com/devblok/tracer/gfx/res"
)

type swapchain struct {
	images    []gfx.Image
	next      int
	presented []uint32
	failAt    int
}

func (s *swapchain) Acquire() (pass.Frame, error) {
	if s.failAt > 0 && s.next+1 == s.failAt {
		return pass.Frame{}, errors.New("out of date")
	}
	idx := s.next % len(s.images)
	s.next++
	return pass.Frame{
		Image:     s.images[idx],
		Index:     uint32(idx),
		Extent:    gfx.Extent3D{Width: 640, Height: 480, Depth: 1},
		Available: gfx.Semaphore(100 + idx),
		Finished:  gfx.Semaphore(200 + idx),
	}, nil
}

func (s *swapchain) Present(f pass.Frame) error {
	s.presented = append(s.presented, f.Index)
	return nil
}

type submission struct {
	Cmd          gfx.CommandBuffer
	Wait, Signal gfx.Semaphore
}

type queue struct {
	submitted []submission
}

func (q *queue) Submit(cmd gfx.CommandBuffer, wait, signal gfx.Semaphore) (gfx.Fence, error) {
	q.submitted = append(q.submitted, submission{cmd, wait, signal})
	return gfx.Fence(len(q.submitted)), nil
}

type tracer struct {
	extents []gfx.Extent3D
}

func (t *tracer) RecordTrace(cmd gfx.CommandBuffer, set gfx.DescriptorSet, extent gfx.Extent3D) error {
	t.extents = append(t.extents, extent)
	return nil
}

type scene struct {
	dev     *gfxtest.Device
	alloc   *mem.Allocator
	builder *accel.Builder
	camera  *res.Buffer
}

func newScene(c *qt.C, withTlas bool) *scene {
	dev := gfxtest.NewDevice()
	alloc := mem.NewAllocator(dev, mem.WithPageSize(1<<20))
	mesh, err := accel.UploadMesh(dev, alloc, []glm.Vec3{{-0.5, -0.5, 0}, {0, 0.5, 0}, {0.5, -0.5, 0}}, []uint32{0, 1, 2})
	c.Assert(err, qt.IsNil)
	in, err := mesh.Input()
	c.Assert(err, qt.IsNil)

	b := accel.NewBuilder(dev, alloc, gfx.Queue(1), 0)
	c.Assert(b.BuildBLAS([]accel.BlasInput{in}, gfx.BuildPreferFastBuild), qt.IsNil)
	c.Assert(mesh.Release(), qt.IsNil)
	if withTlas {
		err := b.BuildTLAS([]accel.Instance{{Mask: 0xFF, Transform: glm.Ident4()}}, gfx.BuildPreferFastTrace|gfx.BuildAllowUpdate, false)
		c.Assert(err, qt.IsNil)
	}

	camera, err := res.NewBuffer(dev, alloc, 128, gfx.BufferUsageUniform, gfx.MemoryHostAccess)
	c.Assert(err, qt.IsNil)
	return &scene{dev: dev, alloc: alloc, builder: b, camera: camera}
}

func TestBindingsSizePool(t *testing.T) {
	c := qt.New(t)
	c.Assert(pass.PoolSizes(2).PoolSizes(), qt.DeepEquals, []descriptor.PoolSize{
		{Type: descriptor.StorageImage, Count: 2},
		{Type: descriptor.UniformBuffer, Count: 2},
		{Type: descriptor.AccelerationStructure, Count: 2},
	})
}

func TestDraw(t *testing.T) {
	c := qt.New(t)
	s := newScene(c, true)
	chain := &swapchain{images: []gfx.Image{11, 12}}
	q := &queue{}
	tr := &tracer{}

	pt, err := pass.NewPathTracer(pass.PathTracerConfiguration{
		Writer:    s.dev,
		Presenter: chain,
		Submitter: q,
		Tracer:    tr,
		Set:       gfx.DescriptorSet(7),
		Camera:    s.camera,
	})
	c.Assert(err, qt.IsNil)

	c.Assert(pt.Draw(s.builder, gfx.CommandBuffer(90)), qt.IsNil)
	tlas, err := s.builder.Tlas()
	c.Assert(err, qt.IsNil)

	writes := s.dev.Writes()
	c.Assert(writes, qt.HasLen, 3)
	c.Assert(writes[0].Binding, qt.Equals, uint32(pass.BindingScene))
	c.Assert(writes[0].Resource, qt.Equals, descriptor.Resource(descriptor.AccelerationStructureResource{Structure: tlas.Structure().Handle()}))
	c.Assert(writes[1].Resource, qt.Equals, descriptor.Resource(descriptor.BufferResource{Buffer: s.camera.Handle(), Range: 128}))
	c.Assert(writes[2].Resource, qt.Equals, descriptor.Resource(descriptor.ImageResource{Image: 11}))
	for _, w := range writes {
		c.Assert(w.Set, qt.Equals, gfx.DescriptorSet(7))
	}

	c.Assert(q.submitted, qt.DeepEquals, []submission{{Cmd: 90, Wait: 100, Signal: 200}})
	c.Assert(chain.presented, qt.DeepEquals, []uint32{0})
	c.Assert(tr.extents[0].Width, qt.Equals, uint32(640))

	// the next image only needs the output rewritten, the same image nothing
	c.Assert(pt.Draw(s.builder, gfx.CommandBuffer(91)), qt.IsNil)
	c.Assert(s.dev.Writes(), qt.HasLen, 4)
	chain.images = []gfx.Image{12}
	c.Assert(pt.Draw(s.builder, gfx.CommandBuffer(92)), qt.IsNil)
	c.Assert(s.dev.Writes(), qt.HasLen, 4)
	c.Assert(pt.Frames(), qt.Equals, uint64(3))

	c.Assert(pt.Release(), qt.IsNil)
	c.Assert(s.camera.Release(), qt.IsNil)
}

func TestDrawRequiresTlas(t *testing.T) {
	c := qt.New(t)
	s := newScene(c, false)
	chain := &swapchain{images: []gfx.Image{11}}

	pt, err := pass.NewPathTracer(pass.PathTracerConfiguration{
		Writer:    s.dev,
		Presenter: chain,
		Submitter: &queue{},
		Tracer:    &tracer{},
		Camera:    s.camera,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(pt.Draw(s.builder, gfx.CommandBuffer(1)), qt.ErrorIs, gfx.ErrNotBuilt)
	c.Assert(chain.next, qt.Equals, 0)
	c.Assert(s.dev.Writes(), qt.HasLen, 0)
}

func TestDrawStopsOnAcquireFailure(t *testing.T) {
	c := qt.New(t)
	s := newScene(c, true)
	q := &queue{}

	pt, err := pass.NewPathTracer(pass.PathTracerConfiguration{
		Writer:    s.dev,
		Presenter: &swapchain{images: []gfx.Image{11}, failAt: 1},
		Submitter: q,
		Tracer:    &tracer{},
		Camera:    s.camera,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(pt.Draw(s.builder, gfx.CommandBuffer(1)), qt.ErrorMatches, `acquiring frame: out of date`)
	c.Assert(q.submitted, qt.HasLen, 0)
}

func TestNewPathTracerValidates(t *testing.T) {
	c := qt.New(t)
	_, err := pass.NewPathTracer(pass.PathTracerConfiguration{})
	c.Assert(err, qt.ErrorMatches, `path tracer needs a descriptor writer`)
}
