// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/accel"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/model"
	"github.com/devblok/tracer/utility/kar"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
)

const (
	blasFlags = gfx.BuildPreferFastBuild | gfx.BuildAllowCompaction
	tlasFlags = gfx.BuildPreferFastTrace | gfx.BuildAllowUpdate

	spacing = 1.5
)

// loadMeshes reads every mesh of the archive at path, or returns the
// built-in triangle when path is empty.
func loadMeshes(path string) ([]*model.Mesh, error) {
	if path == "" {
		return []*model.Mesh{model.Triangle()}, nil
	}
	ar, err := kar.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer ar.Close()

	var meshes []*model.Mesh
	for _, name := range ar.Meshes() {
		mesh, err := ar.Mesh(name)
		if err != nil {
			return nil, err
		}
		meshes = append(meshes, mesh)
	}
	if len(meshes) == 0 {
		return nil, errors.Newf("%s holds no meshes", path)
	}
	return meshes, nil
}

type scene struct {
	log        log.FieldLogger
	builder    *accel.Builder
	buffers    []*accel.MeshBuffers
	placements []*model.Placement
	instances  []accel.Instance
}

// newScene uploads the meshes, builds one BLAS per mesh and a TLAS with
// one instance of each, lined up along X.
func newScene(device gfx.BufferDevice, alloc *mem.Allocator, builder *accel.Builder, meshes []*model.Mesh, logger log.FieldLogger) (*scene, error) {
	s := &scene{log: logger, builder: builder}

	inputs := make([]accel.BlasInput, 0, len(meshes))
	for _, mesh := range meshes {
		buffers, err := accel.UploadMesh(device, alloc, mesh.Positions(), mesh.Indices)
		if err != nil {
			s.release()
			return nil, errors.Wrapf(err, "mesh %s", mesh.Name)
		}
		s.buffers = append(s.buffers, buffers)

		input, err := buffers.Input()
		if err != nil {
			s.release()
			return nil, errors.Wrapf(err, "mesh %s", mesh.Name)
		}
		inputs = append(inputs, input)
	}
	if err := builder.BuildBLAS(inputs, blasFlags); err != nil {
		s.release()
		return nil, err
	}

	offset := spacing * float32(len(meshes)-1) / 2
	for idx := range meshes {
		placement := model.NewPlacement()
		placement.SetPosition(glm.Translate3D(float32(idx)*spacing-offset, 0, 0))
		s.placements = append(s.placements, placement)
		s.instances = append(s.instances, accel.Instance{
			BlasID:    uint32(idx),
			CustomID:  uint32(idx),
			Mask:      0xFF,
			Flags:     gfx.InstanceTriangleFacingCullDisable,
			Transform: placement.Transform(),
		})
	}
	if err := builder.BuildTLAS(s.instances, tlasFlags, false); err != nil {
		s.release()
		return nil, err
	}

	logger.WithFields(log.Fields{
		"meshes":    len(meshes),
		"instances": len(s.instances),
	}).Info("scene built")
	return s, nil
}

// update spins every instance around Y and refits the TLAS.
func (s *scene) update(elapsed time.Duration) error {
	angle := float32(elapsed.Seconds())
	for idx, placement := range s.placements {
		placement.SetRotation(glm.HomogRotate3DY(angle))
		s.instances[idx].Transform = placement.Transform()
	}
	return s.builder.BuildTLAS(s.instances, tlasFlags, true)
}

func (s *scene) release() error {
	err := s.builder.Release()
	for _, buffers := range s.buffers {
		err = errors.CombineErrors(err, buffers.Release())
	}
	s.buffers = nil
	return err
}
