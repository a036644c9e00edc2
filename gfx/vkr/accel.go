// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/gfx"
	"github.com/sirupsen/logrus"
)

// AccelerationStructureBuildSizes implements gfx.AccelerationStructureDevice.
func (d *Device) AccelerationStructureBuildSizes(level gfx.AccelerationStructureLevel, flags gfx.BuildFlags, geometries []gfx.GeometryInfo) (gfx.BuildSizes, error) {
	sizes, err := d.khr.buildSizes(d.device, level, flags, geometries)
	return sizes, errors.Wrap(err, "vkGetAccelerationStructureBuildSizesKHR()")
}

// CreateAccelerationStructure implements gfx.AccelerationStructureDevice.
func (d *Device) CreateAccelerationStructure(info gfx.AccelerationStructureCreateInfo) (gfx.AccelerationStructure, error) {
	buffer, ok := d.buffers.Get(uint64(info.Buffer))
	if !ok {
		return gfx.NullAccelerationStructure, unknown("buffer", uint64(info.Buffer))
	}
	s, err := d.khr.create(d.device, buffer, info)
	if err != nil {
		return gfx.NullAccelerationStructure, errors.Wrap(err, "vkCreateAccelerationStructureKHR()")
	}
	return gfx.AccelerationStructure(d.structures.Insert(s)), nil
}

// DestroyAccelerationStructure implements gfx.AccelerationStructureDevice.
func (d *Device) DestroyAccelerationStructure(as gfx.AccelerationStructure) {
	s, ok := d.structures.Remove(uint64(as))
	if !ok {
		d.log.WithError(unknown("acceleration structure", uint64(as))).Error("destroy acceleration structure")
		return
	}
	d.khr.destroy(d.device, s)
}

// AccelerationStructureDeviceAddress implements gfx.AccelerationStructureDevice.
func (d *Device) AccelerationStructureDeviceAddress(as gfx.AccelerationStructure) (gfx.DeviceAddress, error) {
	s, ok := d.structures.Get(uint64(as))
	if !ok {
		return 0, unknown("acceleration structure", uint64(as))
	}
	addr, err := gfx.NewDeviceAddress(d.khr.structureAddress(d.device, s))
	return addr, errors.Wrap(err, "vkGetAccelerationStructureDeviceAddressKHR()")
}

// CmdBuildAccelerationStructure implements gfx.Recorder. Nothing is
// recorded when an error is returned.
func (d *Device) CmdBuildAccelerationStructure(cmd gfx.CommandBuffer, info gfx.BuildGeometryInfo, ranges []gfx.BuildRange) error {
	native, ok := d.commandBuffers.Get(uint64(cmd))
	if !ok {
		return unknown("command buffer", uint64(cmd))
	}
	dst, ok := d.structures.Get(uint64(info.Dst))
	if !ok {
		return unknown("acceleration structure", uint64(info.Dst))
	}
	var src structure
	if info.Src != gfx.NullAccelerationStructure {
		if src, ok = d.structures.Get(uint64(info.Src)); !ok {
			return unknown("acceleration structure", uint64(info.Src))
		}
	}
	if err := d.khr.cmdBuild(native.handle, info, src, dst, ranges); err != nil {
		d.log.WithFields(logrus.Fields{
			"level": info.Level,
			"mode":  info.Mode,
		}).WithError(err).Debug("build not recorded")
		return errors.Wrap(err, "vkCmdBuildAccelerationStructuresKHR()")
	}
	return nil
}
