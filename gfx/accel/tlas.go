// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package accel

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/res"
)

// InstanceSize is the size of one native instance record.
const InstanceSize = 64

const maxInstanceField = 1<<24 - 1

// ErrInstanceField is returned when a custom id or hit group does not fit 24 bits.
var ErrInstanceField = errors.New("instance field exceeds 24 bits")

// Instance places a bottom level structure into the scene.
type Instance struct {
	BlasID    uint32
	CustomID  uint32
	HitGroup  uint32
	Mask      uint8
	Flags     gfx.InstanceFlags
	Transform glm.Mat4
}

// Tlas is the built top level structure.
type Tlas struct {
	structure *Structure
	flags     gfx.BuildFlags
	instances int
}

// Structure returns the built structure.
func (t *Tlas) Structure() *Structure {
	return t.structure
}

// DeviceAddress returns the address of the top level structure.
func (t *Tlas) DeviceAddress() gfx.DeviceAddress {
	return t.structure.address
}

// Flags returns the flags the structure was built with.
func (t *Tlas) Flags() gfx.BuildFlags {
	return t.flags
}

// InstanceCount returns the number of instances in the structure.
func (t *Tlas) InstanceCount() int {
	return t.instances
}

// resolve encodes instances into native records, looking up the address
// of every referenced bottom level structure.
func (b *Builder) resolve(instances []Instance) ([]byte, error) {
	records := make([]byte, len(instances)*InstanceSize)
	for idx, in := range instances {
		if int(in.BlasID) >= len(b.blas) {
			return nil, errors.Wrapf(gfx.ErrBlasIndexOutOfRange, "instance %d references blas %d of %d", idx, in.BlasID, len(b.blas))
		}
		if in.CustomID > maxInstanceField || in.HitGroup > maxInstanceField {
			return nil, errors.Wrapf(ErrInstanceField, "instance %d", idx)
		}
		encodeInstance(records[idx*InstanceSize:], in, b.blas[in.BlasID].structure.address)
	}
	return records, nil
}

// encodeInstance writes a VkAccelerationStructureInstanceKHR. The transform
// is the top three rows of the row-major matrix.
func encodeInstance(dst []byte, in Instance, reference gfx.DeviceAddress) {
	for row := 0; row < 3; row++ {
		r := in.Transform.Row(row)
		for col := 0; col < 4; col++ {
			binary.LittleEndian.PutUint32(dst[(row*4+col)*4:], math.Float32bits(r[col]))
		}
	}
	binary.LittleEndian.PutUint32(dst[48:], in.CustomID|uint32(in.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], in.HitGroup|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], uint64(reference))
}

// BuildTLAS builds the top level structure over instances. A fresh build
// requires that none exists yet, an update rebuilds the existing structure
// in place and replaces the instance buffer.
func (b *Builder) BuildTLAS(instances []Instance, flags gfx.BuildFlags, update bool) error {
	mode := gfx.BuildModeBuild
	if update {
		mode = gfx.BuildModeUpdate
		if b.tlas == nil {
			return errors.Wrap(gfx.ErrNotBuilt, "tlas update")
		}
		if b.tlas.flags&gfx.BuildAllowUpdate == 0 {
			return errors.Wrapf(gfx.ErrUpdateNotAllowed, "tlas built with flags 0x%x", uint32(b.tlas.flags))
		}
		if len(instances) != b.tlas.instances {
			return errors.Wrapf(gfx.ErrInstanceCountMismatch, "%d instances, built with %d", len(instances), b.tlas.instances)
		}
		flags = b.tlas.flags
	} else if b.tlas != nil {
		return errors.Wrap(gfx.ErrAlreadyBuilt, "tlas")
	}
	if len(b.blas) == 0 {
		return errors.Wrap(gfx.ErrNotBuilt, "no bottom level structures")
	}
	if len(instances) == 0 {
		return errors.Wrap(gfx.ErrNoGeometry, "tlas")
	}

	records, err := b.resolve(instances)
	if err != nil {
		return err
	}
	if err := b.settle(); err != nil {
		return err
	}

	if b.instances != nil {
		if err := b.instances.Release(); err != nil {
			return errors.Wrap(err, "previous instance buffer")
		}
		b.instances = nil
	}

	instanceBuffer, err := res.NewBuffer(b.device, b.alloc, uint64(len(records)),
		gfx.BufferUsageAccelerationStructureBuildInputReadOnly,
		gfx.MemoryHostAccess|gfx.MemoryDeviceAddress)
	if err != nil {
		return errors.Wrap(err, "instance buffer")
	}
	if err := instanceBuffer.Store(records); err != nil {
		instanceBuffer.Release()
		return errors.Wrap(err, "instance upload")
	}
	instanceAddress, _ := instanceBuffer.DeviceAddress()

	var (
		created *Structure
		scratch *res.Buffer
	)
	pool, err := b.newPool()
	if err != nil {
		instanceBuffer.Release()
		return err
	}
	rollback := func() {
		pool.Destroy()
		if scratch != nil {
			scratch.Release()
		}
		if created != nil {
			created.release(b.device)
		}
		instanceBuffer.Release()
	}

	buffers, err := pool.Allocate(gfx.CommandBufferLevelPrimary, 1)
	if err != nil {
		rollback()
		return err
	}
	cmd := buffers[0]
	if err := pool.Begin(cmd); err != nil {
		rollback()
		return err
	}
	err = b.device.CmdPipelineBarrier(cmd,
		gfx.PipelineStageTransfer,
		gfx.PipelineStageAccelerationStructureBuild,
		[]gfx.MemoryBarrier{{
			SrcAccess: gfx.AccessTransferWrite,
			DstAccess: gfx.AccessAccelerationStructureWrite,
		}})
	if err != nil {
		rollback()
		return errors.Wrap(err, "recording tlas")
	}

	geometry := gfx.Instances{
		Flags:          gfx.GeometryOpaque,
		Data:           instanceAddress,
		PrimitiveCount: uint32(len(instances)),
	}
	sizes, err := b.device.AccelerationStructureBuildSizes(gfx.TopLevel, flags, []gfx.GeometryInfo{geometry.Info()})
	if err != nil {
		rollback()
		return errors.Wrap(err, "vk.GetAccelerationStructureBuildSizesKHR(tlas)")
	}

	target := b.tlas
	if !update {
		created, err = b.newStructure(gfx.TopLevel, sizes)
		if err != nil {
			rollback()
			return errors.Wrap(err, "tlas")
		}
		target = &Tlas{structure: created, flags: flags, instances: len(instances)}
	}

	scratchSize := sizes.ScratchSize(mode)
	if scratchSize == 0 {
		scratchSize = sizes.BuildScratchSize
	}
	scratch, scratchAddress, err := b.newScratch(scratchSize)
	if err != nil {
		rollback()
		return err
	}

	src := gfx.NullAccelerationStructure
	if update {
		src = target.structure.handle
	}
	err = b.device.CmdBuildAccelerationStructure(cmd, gfx.BuildGeometryInfo{
		Level:      gfx.TopLevel,
		Flags:      flags,
		Mode:       mode,
		Src:        src,
		Dst:        target.structure.handle,
		Geometries: []gfx.Geometry{geometry},
		Scratch:    scratchAddress,
	}, []gfx.BuildRange{{PrimitiveCount: uint32(len(instances))}})
	if err != nil {
		rollback()
		return errors.Wrap(err, "recording tlas")
	}

	if err := pool.SubmitAndWait(buffers); err != nil {
		if !pool.Pending() {
			rollback()
			return err
		}
		parked := &inflight{pool: pool, scratch: scratch, buffers: []*res.Buffer{instanceBuffer}}
		if created != nil {
			parked.structures = []*Structure{created}
		}
		b.park(parked)
		return err
	}
	pool.Destroy()
	if err := scratch.Release(); err != nil {
		b.log.WithError(err).Error("releasing tlas scratch buffer")
	}

	b.tlas = target
	b.instances = instanceBuffer
	b.log.WithFields(logrus.Fields{
		"entries": len(instances),
		"scratch": scratchSize,
		"mode":    mode,
	}).Debug("built top level acceleration structure")
	return nil
}
