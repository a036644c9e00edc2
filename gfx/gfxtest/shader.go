// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"github.com/cockroachdb/errors"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
)

// CreateShaderModule implements shader.Device
func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateShaderModule"); err != nil {
		return 0, err
	}
	if len(code) == 0 {
		return 0, errors.New("gfxtest: empty shader code")
	}
	h := gfx.ShaderModule(d.handle())
	d.shaders[h] = append([]uint32(nil), code...)
	return h, nil
}

// DestroyShaderModule implements shader.Device
func (d *Device) DestroyShaderModule(module gfx.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyShaderModule")
	d.destroy("DestroyShaderModule", uint64(module))
	delete(d.shaders, module)
}

// ShaderCode returns the words a live module was created from.
func (d *Device) ShaderCode(module gfx.ShaderModule) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shaders[module]
}

// UpdateDescriptorSets implements descriptor.Writer
func (d *Device) UpdateDescriptorSets(writes []descriptor.Write) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("UpdateDescriptorSets"); err != nil {
		return err
	}
	d.writes = append(d.writes, writes...)
	return nil
}

// Writes returns every descriptor write applied so far.
func (d *Device) Writes() []descriptor.Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]descriptor.Write(nil), d.writes...)
}
