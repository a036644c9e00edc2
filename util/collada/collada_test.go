// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package collada_test

import (
	"encoding/xml"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/util/collada"
)

const quad = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <library_geometries>
    <geometry id="Quad-mesh" name="Quad">
      <mesh>
        <source id="Quad-mesh-positions">
          <float_array id="Quad-mesh-positions-array" count="12">-1 -1 0 1 -1 0
            1 1 0 -1 1 0</float_array>
          <technique_common>
            <accessor source="#Quad-mesh-positions-array" count="4" stride="3"/>
          </technique_common>
        </source>
        <source id="Quad-mesh-normals">
          <float_array id="Quad-mesh-normals-array" count="3">0 0 1</float_array>
          <technique_common>
            <accessor source="#Quad-mesh-normals-array" count="1" stride="3"/>
          </technique_common>
        </source>
        <vertices id="Quad-mesh-vertices">
          <input semantic="POSITION" source="#Quad-mesh-positions"/>
        </vertices>
        <triangles material="Material-material" count="2">
          <input semantic="VERTEX" source="#Quad-mesh-vertices" offset="0"/>
          <input semantic="NORMAL" source="#Quad-mesh-normals" offset="1"/>
          <p>0 0 1 0 2 0 0 0 2 0 3 0</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestDecode(t *testing.T) {
	c := qt.New(t)
	doc, err := collada.Decode([]byte(quad))
	c.Assert(err, qt.IsNil)
	c.Assert(doc.Geometries, qt.HasLen, 1)

	geom := doc.Geometries[0]
	c.Assert(geom.ID, qt.Equals, "Quad-mesh")
	c.Assert(geom.Name, qt.Equals, "Quad")
	c.Assert(geom.Mesh.Triangles.Count, qt.Equals, 2)
	c.Assert(geom.Mesh.Triangles.Stride(), qt.Equals, 2)
	c.Assert(geom.Mesh.Triangles.Index, qt.DeepEquals, []int{0, 0, 1, 0, 2, 0, 0, 0, 2, 0, 3, 0})

	vertex, ok := geom.Mesh.Triangles.Input("VERTEX")
	c.Assert(ok, qt.IsTrue)
	positions, err := geom.Mesh.FindSource(vertex.Source)
	c.Assert(err, qt.IsNil)
	c.Assert(positions.ID, qt.Equals, "Quad-mesh-positions")
	c.Assert(positions.Len(), qt.Equals, 4)

	third, err := positions.Element(2)
	c.Assert(err, qt.IsNil)
	c.Assert(third, qt.DeepEquals, []float32{1, 1, 0})

	_, err = positions.Element(4)
	c.Assert(err, qt.ErrorMatches, `element 4 out of 4 in source "Quad-mesh-positions"`)

	_, err = geom.Mesh.FindSource("#Quad-mesh-uvs")
	c.Assert(err, qt.ErrorMatches, `source "Quad-mesh-uvs" not found`)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	c := qt.New(t)
	_, err := collada.Decode([]byte(`<COLLADA><library_geometries><geometry><mesh>
		<source id="bad"><float_array id="bad-array">1 x 3</float_array></source>
		</mesh></geometry></library_geometries></COLLADA>`))
	c.Assert(err, qt.ErrorMatches, `collada: float_array "bad-array": .*`)
}

func TestTrianglesDecode(t *testing.T) {
	c := qt.New(t)
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11 7 11</p>
		</triangles>
	`
	var triangles collada.Triangles
	c.Assert(xml.Unmarshal([]byte(data), &triangles), qt.IsNil)
	c.Assert(triangles.Material, qt.Equals, "Material-material")
	c.Assert(triangles.Count, qt.Equals, 12)
	c.Assert(triangles.Inputs, qt.HasLen, 2)
	c.Assert(triangles.Index, qt.HasLen, 12*6)
}

func TestInputDecode(t *testing.T) {
	c := qt.New(t)
	data := `
	<object>
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0" />
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1" />
		<input semantic="TEXCOORD" source="#Cube-mesh-textures" offset="2" />
	</object>
	`

	type Object struct {
		XMLName xml.Name        `xml:"object"`
		Inputs  []collada.Input `xml:"input"`
	}

	var obj Object
	c.Assert(xml.Unmarshal([]byte(data), &obj), qt.IsNil)
	c.Assert(obj.Inputs, qt.DeepEquals, []collada.Input{
		{Semantic: "VERTEX", Source: "#Cube-mesh-vertices", Offset: 0},
		{Semantic: "NORMAL", Source: "#Cube-mesh-normals", Offset: 1},
		{Semantic: "TEXCOORD", Source: "#Cube-mesh-textures", Offset: 2},
	})
}

func TestFloatsDecode(t *testing.T) {
	c := qt.New(t)
	data := `<float_array id="Cube-mesh-normals-array" count="36">0 0 -1 0 0 1 1 0 -2.38419e-7 0 -1 -4.76837e-7 -1 2.38419e-7 -1.49012e-7 2.68221e-7 1 2.38419e-7 0 0 -1 0 0 1 1 -5.96046e-7 3.27825e-7 -4.76837e-7 -1 0 -1 2.38419e-7 -1.19209e-7 2.08616e-7 1 0</float_array>`

	var floats collada.Floats
	c.Assert(xml.Unmarshal([]byte(data), &floats), qt.IsNil)
	c.Assert(floats.Data, qt.HasLen, 36)
	c.Assert(floats.ID, qt.Equals, "Cube-mesh-normals-array")
}
