// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/util/collada"
	glm "github.com/go-gl/mathgl/mgl32"
)

// ImportCollada converts every geometry of a Collada document into a mesh.
// Vertices sharing a position and normal index are merged.
func ImportCollada(fileContents []byte) ([]*Mesh, error) {
	doc, err := collada.Decode(fileContents)
	if err != nil {
		return nil, err
	}
	if len(doc.Geometries) == 0 {
		return nil, errors.New("collada: no geometries")
	}

	meshes := make([]*Mesh, 0, len(doc.Geometries))
	for idx := range doc.Geometries {
		mesh, err := convertGeometry(&doc.Geometries[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "geometry %q", doc.Geometries[idx].ID)
		}
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

func convertGeometry(geom *collada.Geometry) (*Mesh, error) {
	mesh := &geom.Mesh
	triangles := &mesh.Triangles

	vertexInput, ok := triangles.Input("VERTEX")
	if !ok {
		return nil, errors.New("triangles without a VERTEX input")
	}
	positions, err := mesh.FindSource(vertexInput.Source)
	if err != nil {
		return nil, err
	}

	var normals *collada.Source
	normalInput, hasNormals := triangles.Input("NORMAL")
	if hasNormals {
		if normals, err = mesh.FindSource(normalInput.Source); err != nil {
			return nil, err
		}
	}

	stride := triangles.Stride()
	if stride == 0 || len(triangles.Index)%(stride*3) != 0 {
		return nil, errors.Newf("%d indices do not form triangles of stride %d", len(triangles.Index), stride)
	}

	type key struct{ position, normal int }
	name := geom.Name
	if name == "" {
		name = geom.ID
	}
	out := &Mesh{Name: name}
	seen := make(map[key]uint32)
	for base := 0; base < len(triangles.Index); base += stride {
		k := key{position: triangles.Index[base+int(vertexInput.Offset)], normal: -1}
		if hasNormals {
			k.normal = triangles.Index[base+int(normalInput.Offset)]
		}
		if existing, ok := seen[k]; ok {
			out.Indices = append(out.Indices, existing)
			continue
		}

		var vert Vertex
		if vert.Pos, err = vec3(positions, k.position); err != nil {
			return nil, err
		}
		if hasNormals {
			if vert.Normal, err = vec3(normals, k.normal); err != nil {
				return nil, err
			}
		}

		index := uint32(len(out.Vertices))
		seen[k] = index
		out.Vertices = append(out.Vertices, vert)
		out.Indices = append(out.Indices, index)
	}
	return out, nil
}

func vec3(source *collada.Source, idx int) (glm.Vec3, error) {
	e, err := source.Element(idx)
	if err != nil {
		return glm.Vec3{}, err
	}
	if len(e) < 3 {
		return glm.Vec3{}, errors.Newf("source %q has %d components, want 3", source.ID, len(e))
	}
	return glm.Vec3{e[0], e[1], e[2]}, nil
}
