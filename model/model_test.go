// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"io/ioutil"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/tracer/model"
)

func TestTriangle(t *testing.T) {
	c := qt.New(t)
	tri := model.Triangle()
	c.Assert(tri.TriangleCount(), qt.Equals, 1)
	c.Assert(tri.Indices, qt.DeepEquals, []uint32{0, 1, 2})
	c.Assert(tri.Positions(), qt.DeepEquals, []glm.Vec3{
		{-0.5, -0.5, 0},
		{0, 0.5, 0},
		{0.5, -0.5, 0},
	})
}

func TestImportCollada(t *testing.T) {
	c := qt.New(t)
	data, err := ioutil.ReadFile("testdata/quad.dae")
	c.Assert(err, qt.IsNil)

	meshes, err := model.ImportCollada(data)
	c.Assert(err, qt.IsNil)
	c.Assert(meshes, qt.HasLen, 2)

	quad := meshes[0]
	c.Assert(quad.Name, qt.Equals, "Quad")
	c.Assert(quad.TriangleCount(), qt.Equals, 2)
	c.Assert(quad.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 2, 3})
	c.Assert(quad.Positions(), qt.DeepEquals, []glm.Vec3{
		{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0},
	})
	for _, v := range quad.Vertices {
		c.Assert(v.Normal, qt.Equals, glm.Vec3{0, 0, 1})
	}

	tri := meshes[1]
	c.Assert(tri.Name, qt.Equals, "Tri-mesh")
	c.Assert(tri.Indices, qt.DeepEquals, []uint32{0, 1, 2})
	c.Assert(tri.Vertices[1].Normal, qt.Equals, glm.Vec3{})
}

func TestImportColladaErrors(t *testing.T) {
	c := qt.New(t)

	_, err := model.ImportCollada([]byte(`<COLLADA/>`))
	c.Assert(err, qt.ErrorMatches, "collada: no geometries")

	_, err = model.ImportCollada([]byte(`<COLLADA><library_geometries><geometry id="g"><mesh>
		<source id="p"><float_array id="pa">0 0 0 1 0 0 0 1 0</float_array></source>
		<vertices id="v"><input semantic="POSITION" source="#p"/></vertices>
		<triangles count="1"><input semantic="VERTEX" source="#v" offset="0"/><p>0 1 3</p></triangles>
		</mesh></geometry></library_geometries></COLLADA>`))
	c.Assert(err, qt.ErrorMatches, `geometry "g": element 3 out of 3 in source "p"`)

	_, err = model.ImportCollada([]byte(`<COLLADA><library_geometries><geometry id="g"><mesh>
		<triangles count="1"><input semantic="VERTEX" source="#v" offset="0"/><p>0 1</p></triangles>
		</mesh></geometry></library_geometries></COLLADA>`))
	c.Assert(err, qt.ErrorMatches, `geometry "g": source "v" not found`)
}

func TestPlacement(t *testing.T) {
	c := qt.New(t)
	p := model.NewPlacement()
	c.Assert(p.Transform(), qt.Equals, glm.Ident4())

	p.SetPosition(glm.Translate3D(1, 2, 3))
	p.SetRotation(glm.HomogRotate3DZ(0))
	c.Assert(p.Rotation(), qt.Equals, glm.HomogRotate3DZ(0))
	c.Assert(p.Transform().Col(3), qt.Equals, glm.Vec4{1, 2, 3, 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SetRotation(glm.HomogRotate3DY(float32(i)))
			_ = p.Transform()
		}(i)
	}
	wg.Wait()
	c.Assert(p.Position(), qt.Equals, glm.Translate3D(1, 2, 3))
}
