// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package accel

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/command"
	"github.com/devblok/tracer/gfx/res"
)

// BlasInput is the geometry of one bottom level structure. Ranges pairs
// up with Geometries, its primitive counts are the worst case the
// structure is sized for.
type BlasInput struct {
	Geometries []gfx.Geometry
	Ranges     []gfx.BuildRange
}

// sizingInfo returns the geometry the size query is made with.
func (in BlasInput) sizingInfo() ([]gfx.GeometryInfo, error) {
	if len(in.Geometries) == 0 {
		return nil, gfx.ErrNoGeometry
	}
	if len(in.Ranges) != len(in.Geometries) {
		return nil, errors.Wrapf(gfx.ErrGeometryMismatch, "%d geometries, %d ranges", len(in.Geometries), len(in.Ranges))
	}
	infos := make([]gfx.GeometryInfo, len(in.Geometries))
	for idx, g := range in.Geometries {
		switch geometry := g.(type) {
		case gfx.Triangles:
			info := geometry.Info().(gfx.TrianglesInfo)
			info.MaxPrimitiveCount = in.Ranges[idx].PrimitiveCount
			infos[idx] = info
		default:
			return nil, errors.Wrapf(gfx.ErrGeometryMismatch, "geometry %d: bottom level takes triangles, got %T", idx, g)
		}
	}
	return infos, nil
}

// BlasEntry is one built bottom level structure and the input it was built from.
type BlasEntry struct {
	Input BlasInput
	Flags gfx.BuildFlags

	structure *Structure
}

// Structure returns the built structure.
func (e *BlasEntry) Structure() *Structure {
	return e.structure
}

// BuildBLAS builds one bottom level structure per input as a single batch.
// Either every entry is built or none is, and a builder builds only one batch.
func (b *Builder) BuildBLAS(inputs []BlasInput, flags gfx.BuildFlags) error {
	if len(b.blas) > 0 {
		return errors.Wrap(gfx.ErrAlreadyBuilt, "blas batch")
	}
	if len(inputs) == 0 {
		return errors.Wrap(gfx.ErrNoGeometry, "blas batch")
	}

	infos := make([][]gfx.GeometryInfo, len(inputs))
	for idx, in := range inputs {
		info, err := in.sizingInfo()
		if err != nil {
			return errors.Wrapf(err, "blas %d", idx)
		}
		infos[idx] = info
	}

	if err := b.settle(); err != nil {
		return err
	}

	entries := make([]*BlasEntry, 0, len(inputs))
	var (
		scratch *res.Buffer
		pool    *command.Pool
	)
	rollback := func() {
		if pool != nil {
			pool.Destroy()
		}
		if scratch != nil {
			scratch.Release()
		}
		for _, e := range entries {
			e.structure.release(b.device)
		}
	}

	for idx, in := range inputs {
		sizes, err := b.device.AccelerationStructureBuildSizes(gfx.BottomLevel, flags, infos[idx])
		if err != nil {
			rollback()
			return errors.Wrapf(err, "vk.GetAccelerationStructureBuildSizesKHR(blas %d)", idx)
		}
		structure, err := b.newStructure(gfx.BottomLevel, sizes)
		if err != nil {
			rollback()
			return errors.Wrapf(err, "blas %d", idx)
		}
		entries = append(entries, &BlasEntry{
			Input:     in,
			Flags:     flags,
			structure: structure,
		})
	}

	offsets, scratchSize := b.scratchLayout(entries)
	scratch, scratchAddress, err := b.newScratch(scratchSize)
	if err != nil {
		rollback()
		return err
	}

	pool, err = b.newPool()
	if err != nil {
		rollback()
		return err
	}
	buffers, err := pool.Allocate(gfx.CommandBufferLevelPrimary, uint32(len(entries)))
	if err != nil {
		rollback()
		return err
	}

	for idx, entry := range entries {
		cmd := buffers[idx]
		if err := pool.Begin(cmd); err != nil {
			rollback()
			return err
		}
		address, err := scratchAddress.Offset(offsets[idx])
		if err != nil {
			rollback()
			return err
		}
		err = b.device.CmdBuildAccelerationStructure(cmd, gfx.BuildGeometryInfo{
			Level:      gfx.BottomLevel,
			Flags:      flags,
			Mode:       gfx.BuildModeBuild,
			Src:        gfx.NullAccelerationStructure,
			Dst:        entry.structure.handle,
			Geometries: entry.Input.Geometries,
			Scratch:    address,
		}, entry.Input.Ranges)
		if err != nil {
			rollback()
			return errors.Wrapf(err, "recording blas %d", idx)
		}
		err = b.device.CmdPipelineBarrier(cmd,
			gfx.PipelineStageAccelerationStructureBuild,
			gfx.PipelineStageAccelerationStructureBuild,
			[]gfx.MemoryBarrier{{
				SrcAccess: gfx.AccessAccelerationStructureWrite,
				DstAccess: gfx.AccessAccelerationStructureRead,
			}})
		if err != nil {
			rollback()
			return errors.Wrapf(err, "recording blas %d", idx)
		}
	}

	if err := pool.SubmitAndWait(buffers); err != nil {
		if !pool.Pending() {
			rollback()
			return err
		}
		parked := &inflight{pool: pool, scratch: scratch}
		for _, e := range entries {
			parked.structures = append(parked.structures, e.structure)
		}
		b.park(parked)
		return err
	}
	pool.Destroy()
	if err := scratch.Release(); err != nil {
		b.log.WithError(err).Error("releasing blas scratch buffer")
	}

	b.blas = entries
	b.log.WithFields(logrus.Fields{
		"entries": len(entries),
		"scratch": scratchSize,
		"policy":  b.policy,
		"mode":    gfx.BuildModeBuild,
	}).Debug("built bottom level acceleration structures")
	return nil
}

// scratchLayout returns the scratch offset of every entry and the total size.
func (b *Builder) scratchLayout(entries []*BlasEntry) ([]uint64, uint64) {
	alignment := uint64(b.limits.MinScratchOffsetAlignment)
	offsets := make([]uint64, len(entries))

	var size uint64
	for idx, e := range entries {
		need := e.structure.sizes.BuildScratchSize
		if b.policy == ScratchPerEntry {
			offsets[idx] = size
			size += alignUp(need, alignment)
			continue
		}
		if need > size {
			size = need
		}
	}
	if size == 0 {
		size = alignment
	}
	return offsets, size
}
