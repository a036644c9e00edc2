// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/model"
)

// MeshExtension marks archive entries holding a gob encoded model.Mesh.
const MeshExtension = ".mesh"

// AddMesh stores a mesh under its name.
func (b *Builder) AddMesh(mesh *model.Mesh) error {
	if mesh.Name == "" {
		return errors.New("mesh without a name")
	}
	data, err := gobEncode(mesh)
	if err != nil {
		return errors.Wrapf(err, "mesh %s", mesh.Name)
	}
	return b.Add(mesh.Name+MeshExtension, bytes.NewReader(data))
}

// Mesh decodes the mesh stored under name.
func (a *Archive) Mesh(name string) (*model.Mesh, error) {
	data, err := a.ReadAll(name + MeshExtension)
	if err != nil {
		return nil, err
	}
	var mesh model.Mesh
	if err := gobDecode(&mesh, data); err != nil {
		return nil, errors.Wrapf(err, "mesh %s", name)
	}
	return &mesh, nil
}

// Meshes returns the names of every mesh in the archive in index order.
func (a *Archive) Meshes() []string {
	var names []string
	for _, e := range a.header.Index {
		if strings.HasSuffix(e.Name, MeshExtension) {
			names = append(names, strings.TrimSuffix(e.Name, MeshExtension))
		}
	}
	return names
}
