// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shader turns shader sources into device shader modules.
package shader

import (
	"encoding/binary"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/packr"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/core"
	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
)

// Magic is the first word of every SPIR-V module.
const Magic = 0x07230203

const (
	headerWords = 5
	suffix      = ".spv"
)

// Language of a shader source.
type Language int

// Languages.
const (
	SPIRV Language = iota
	GLSL
)

func (l Language) String() string {
	if l == GLSL {
		return "glsl"
	}
	return "spir-v"
}

// Source is shader code in some language.
type Source struct {
	Language Language
	Code     []byte
}

// Device creates and destroys shader modules.
type Device interface {
	CreateShaderModule(code []uint32) (gfx.ShaderModule, error)
	DestroyShaderModule(gfx.ShaderModule)
}

// Module is a created shader module.
type Module struct {
	handle gfx.ShaderModule
	owner  Device

	name     string
	stage    descriptor.ShaderStages
	released bool
}

// Handle returns the device handle.
func (m *Module) Handle() gfx.ShaderModule {
	return m.handle
}

// Name returns the name the module was loaded under.
func (m *Module) Name() string {
	return m.name
}

// Stage returns the stage the module is meant for, zero when unknown.
func (m *Module) Stage() descriptor.ShaderStages {
	return m.stage
}

// EntryPoint is the function every module is entered through.
func (m *Module) EntryPoint() string {
	return "main"
}

// Release destroys the module.
func (m *Module) Release() error {
	if m.released {
		return errors.Wrapf(gfx.ErrReleased, "shader module %s", m.name)
	}
	m.released = true
	m.owner.DestroyShaderModule(m.handle)
	return nil
}

// Compiler creates shader modules on a device. Only SPIR-V is
// accepted, other languages must be compiled offline.
type Compiler struct {
	device Device
	log    logrus.FieldLogger
}

// NewCompiler creates a compiler for device. A nil log discards messages.
func NewCompiler(device Device, log logrus.FieldLogger) *Compiler {
	if log == nil {
		discard := logrus.New()
		discard.Out = ioutil.Discard
		log = discard
	}
	return &Compiler{device: device, log: log}
}

// Validate checks that code looks like a SPIR-V module.
func Validate(code []byte) error {
	if len(code)%4 != 0 {
		return errors.Wrapf(gfx.ErrInvalidShaderCode, "length %d is not a multiple of 4", len(code))
	}
	if len(code) < headerWords*4 {
		return errors.Wrapf(gfx.ErrInvalidShaderCode, "%d bytes is shorter than the header", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != Magic {
		return errors.Wrapf(gfx.ErrInvalidShaderCode, "magic 0x%08x", magic)
	}
	return nil
}

// Compile creates an unnamed module from src.
func (c *Compiler) Compile(src Source) (*Module, error) {
	return c.compile("", 0, src)
}

func (c *Compiler) compile(name string, stage descriptor.ShaderStages, src Source) (*Module, error) {
	if src.Language != SPIRV {
		return nil, errors.Wrapf(gfx.ErrUnsupportedLanguage, "%s", src.Language)
	}
	if err := Validate(src.Code); err != nil {
		return nil, err
	}

	// copy so the words are aligned and outlive the source
	code := make([]byte, len(src.Code))
	copy(code, src.Code)
	handle, err := c.device.CreateShaderModule(core.SliceUint32(code))
	if err != nil {
		return nil, errors.Wrap(err, "vk.CreateShaderModule()")
	}
	c.log.WithFields(logrus.Fields{
		"name":  name,
		"bytes": len(code),
	}).Debug("created shader module")
	return &Module{handle: handle, owner: c.device, name: name, stage: stage}, nil
}

// ParseStage returns the stage named by a file suffix such as rgen or frag.
func ParseStage(s string) (descriptor.ShaderStages, bool) {
	switch s {
	case "rgen":
		return descriptor.StageRaygen, true
	case "rmiss":
		return descriptor.StageMiss, true
	case "rchit":
		return descriptor.StageClosestHit, true
	case "rahit":
		return descriptor.StageAnyHit, true
	case "rint":
		return descriptor.StageIntersection, true
	case "rcall":
		return descriptor.StageCallable, true
	case "comp":
		return descriptor.StageCompute, true
	case "vert":
		return descriptor.StageVertex, true
	case "frag":
		return descriptor.StageFragment, true
	}
	return 0, false
}

// LoadBox creates a module from every compiled shader in box. Shader file
// names have the form name.stage.spv, other files are skipped. Modules are
// keyed by name.stage and either all are created or none.
func (c *Compiler) LoadBox(box packr.Box) (map[string]*Module, error) {
	files := box.List()
	sort.Strings(files)

	modules := map[string]*Module{}
	for _, file := range files {
		nodes := strings.Split(strings.TrimSuffix(file, suffix), ".")
		if !strings.HasSuffix(file, suffix) || len(nodes) != 2 {
			continue
		}
		stage, ok := ParseStage(nodes[1])
		if !ok {
			c.log.WithField("file", file).Warn("skipping shader of unknown stage")
			continue
		}

		code, err := box.Find(file)
		if err == nil {
			var m *Module
			if m, err = c.compile(nodes[0], stage, Source{Language: SPIRV, Code: code}); err == nil {
				modules[nodes[0]+"."+nodes[1]] = m
				continue
			}
		}
		for _, m := range modules {
			m.Release()
		}
		return nil, errors.Wrapf(err, "shader %s", file)
	}
	return modules, nil
}
