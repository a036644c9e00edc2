// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shader_test

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gobuffalo/packr"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
	"github.com/devblok/tracer/gfx/gfxtest"
	"github.com/devblok/tracer/gfx/shader"
)

func header() []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, shader.Magic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010500)
	binary.LittleEndian.PutUint32(code[12:], 1)
	return code
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	c.Assert(shader.Validate(header()), qt.IsNil)
	c.Assert(shader.Validate(header()[:19]), qt.ErrorIs, gfx.ErrInvalidShaderCode)
	c.Assert(shader.Validate(header()[:16]), qt.ErrorMatches, `16 bytes is shorter than the header: invalid spir-v code`)

	swapped := header()
	binary.BigEndian.PutUint32(swapped, shader.Magic)
	c.Assert(shader.Validate(swapped), qt.ErrorMatches, `magic 0x03022307: invalid spir-v code`)
}

func TestCompile(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	compiler := shader.NewCompiler(dev, nil)

	m, err := compiler.Compile(shader.Source{Language: shader.SPIRV, Code: header()})
	c.Assert(err, qt.IsNil)
	c.Assert(m.EntryPoint(), qt.Equals, "main")
	c.Assert(dev.ShaderCode(m.Handle()), qt.DeepEquals, []uint32{shader.Magic, 0x00010500, 0, 1, 0})

	c.Assert(m.Release(), qt.IsNil)
	c.Assert(m.Release(), qt.ErrorIs, gfx.ErrReleased)
	c.Assert(dev.DestroyCount("DestroyShaderModule", uint64(m.Handle())), qt.Equals, 1)
}

func TestCompileRejectsGLSL(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	compiler := shader.NewCompiler(dev, nil)

	_, err := compiler.Compile(shader.Source{
		Language: shader.GLSL,
		Code:     []byte("#version 460\nvoid main() {}\n"),
	})
	c.Assert(err, qt.ErrorIs, gfx.ErrUnsupportedLanguage)
	c.Assert(err, qt.ErrorMatches, `glsl: unsupported shader language`)
	c.Assert(dev.Calls(), qt.Equals, 0)
}

func TestLoadBox(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	compiler := shader.NewCompiler(dev, nil)

	modules, err := compiler.LoadBox(packr.NewBox("./testdata/rt"))
	c.Assert(err, qt.IsNil)
	c.Assert(modules, qt.HasLen, 3)
	c.Assert(modules["trace.rgen"].Stage(), qt.Equals, descriptor.StageRaygen)
	c.Assert(modules["trace.rmiss"].Stage(), qt.Equals, descriptor.StageMiss)
	c.Assert(modules["trace.rchit"].Stage(), qt.Equals, descriptor.StageClosestHit)
	c.Assert(modules["trace.rgen"].Name(), qt.Equals, "trace")
	c.Assert(dev.Live()["shader"], qt.Equals, 3)
}

func TestLoadBoxIsAllOrNothing(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice()
	compiler := shader.NewCompiler(dev, nil)

	_, err := compiler.LoadBox(packr.NewBox("./testdata/broken"))
	c.Assert(err, qt.ErrorIs, gfx.ErrInvalidShaderCode)
	c.Assert(err, qt.ErrorMatches, `shader bad.frag.spv: .*`)
	c.Assert(dev.Live()["shader"], qt.Equals, 0)
}

func TestParseStage(t *testing.T) {
	c := qt.New(t)
	stage, ok := shader.ParseStage("rint")
	c.Assert(ok, qt.IsTrue)
	c.Assert(stage, qt.Equals, descriptor.StageIntersection)
	_, ok = shader.ParseStage("geom")
	c.Assert(ok, qt.IsFalse)
}
