// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pass

import (
	"io/ioutil"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/accel"
	"github.com/devblok/tracer/gfx/descriptor"
	"github.com/devblok/tracer/gfx/res"
)

// Bindings of the path tracing descriptor set.
const (
	BindingScene  = 0
	BindingOutput = 1
	BindingCamera = 2
)

// Bindings returns the layout of the path tracing descriptor set.
func Bindings() []descriptor.Binding {
	return []descriptor.Binding{
		{
			Binding: BindingScene,
			Type:    descriptor.AccelerationStructure,
			Count:   1,
			Stages:  descriptor.StageRaygen | descriptor.StageClosestHit,
		},
		{
			Binding: BindingOutput,
			Type:    descriptor.StorageImage,
			Count:   1,
			Stages:  descriptor.StageRaygen,
		},
		{
			Binding: BindingCamera,
			Type:    descriptor.UniformBuffer,
			Count:   1,
			Stages:  descriptor.StageRaygen | descriptor.StageClosestHit | descriptor.StageMiss,
		},
	}
}

// PoolSizes returns the descriptor counts needed for sets path tracing sets.
func PoolSizes(sets uint32) descriptor.Sizes {
	return descriptor.FromBindings(Bindings()).Scale(sets)
}

// PathTracerConfiguration is what a PathTracer draws with.
type PathTracerConfiguration struct {
	Writer    descriptor.Writer
	Presenter Presenter
	Submitter Submitter
	Tracer    Tracer

	// Set must be allocated with the Bindings layout
	Set    gfx.DescriptorSet
	Camera *res.Buffer

	Log logrus.FieldLogger
}

// PathTracer traces the scene of a builder into presentable frames.
type PathTracer struct {
	cfg PathTracerConfiguration
	log logrus.FieldLogger

	scene  gfx.AccelerationStructure
	output gfx.Image
	frames uint64
}

// NewPathTracer creates a path tracer. The camera buffer is retained
// until Release.
func NewPathTracer(cfg PathTracerConfiguration) (*PathTracer, error) {
	switch {
	case cfg.Writer == nil:
		return nil, errors.New("path tracer needs a descriptor writer")
	case cfg.Presenter == nil:
		return nil, errors.New("path tracer needs a presenter")
	case cfg.Submitter == nil:
		return nil, errors.New("path tracer needs a submitter")
	case cfg.Tracer == nil:
		return nil, errors.New("path tracer needs a tracer")
	case cfg.Camera == nil:
		return nil, errors.New("path tracer needs a camera buffer")
	}

	log := cfg.Log
	if log == nil {
		discard := logrus.New()
		discard.Out = ioutil.Discard
		log = discard
	}
	cfg.Camera = cfg.Camera.Retain()
	return &PathTracer{cfg: cfg, log: log}, nil
}

// Frames returns the number of frames drawn.
func (p *PathTracer) Frames() uint64 {
	return p.frames
}

// Draw traces one frame of the scene built by builder, recording into cmd.
// Descriptors are only rewritten when the scene or output image changed.
func (p *PathTracer) Draw(builder *accel.Builder, cmd gfx.CommandBuffer) error {
	tlas, err := builder.Tlas()
	if err != nil {
		return errors.Wrap(err, "draw")
	}

	frame, err := p.cfg.Presenter.Acquire()
	if err != nil {
		return errors.Wrap(err, "acquiring frame")
	}

	var writes []descriptor.Write
	if scene := tlas.Structure().Handle(); scene != p.scene {
		writes = append(writes, descriptor.Write{
			Set:      p.cfg.Set,
			Binding:  BindingScene,
			Type:     descriptor.AccelerationStructure,
			Resource: descriptor.AccelerationStructureResource{Structure: scene},
		})
		if p.scene == 0 {
			writes = append(writes, descriptor.Write{
				Set:     p.cfg.Set,
				Binding: BindingCamera,
				Type:    descriptor.UniformBuffer,
				Resource: descriptor.BufferResource{
					Buffer: p.cfg.Camera.Handle(),
					Range:  p.cfg.Camera.Size(),
				},
			})
		}
	}
	if frame.Image != p.output {
		writes = append(writes, descriptor.Write{
			Set:      p.cfg.Set,
			Binding:  BindingOutput,
			Type:     descriptor.StorageImage,
			Resource: descriptor.ImageResource{Image: frame.Image},
		})
	}
	if len(writes) > 0 {
		if err := p.cfg.Writer.UpdateDescriptorSets(writes); err != nil {
			return errors.Wrap(err, "vk.UpdateDescriptorSets()")
		}
		p.scene = tlas.Structure().Handle()
		p.output = frame.Image
	}

	if err := p.cfg.Tracer.RecordTrace(cmd, p.cfg.Set, frame.Extent); err != nil {
		return errors.Wrap(err, "recording trace")
	}
	if _, err := p.cfg.Submitter.Submit(cmd, frame.Available, frame.Finished); err != nil {
		return errors.Wrap(err, "submitting frame")
	}
	if err := p.cfg.Presenter.Present(frame); err != nil {
		return errors.Wrap(err, "presenting frame")
	}

	p.frames++
	p.log.WithFields(logrus.Fields{
		"frame":  p.frames,
		"image":  frame.Index,
		"writes": len(writes),
	}).Debug("traced frame")
	return nil
}

// Release releases the camera buffer.
func (p *PathTracer) Release() error {
	return p.cfg.Camera.Release()
}
