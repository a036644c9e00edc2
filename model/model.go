// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds mesh geometry and placement of objects in the scene.
package model

import (
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos    glm.Vec3
	Normal glm.Vec3
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Positions returns the vertex positions in order.
func (m *Mesh) Positions() []glm.Vec3 {
	out := make([]glm.Vec3, len(m.Vertices))
	for idx, v := range m.Vertices {
		out[idx] = v.Pos
	}
	return out
}

// TriangleCount returns the number of triangles the indices describe.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Triangle returns a single triangle facing +Z.
func Triangle() *Mesh {
	normal := glm.Vec3{0, 0, 1}
	return &Mesh{
		Name: "triangle",
		Vertices: []Vertex{
			{Pos: glm.Vec3{-0.5, -0.5, 0}, Normal: normal},
			{Pos: glm.Vec3{0, 0.5, 0}, Normal: normal},
			{Pos: glm.Vec3{0.5, -0.5, 0}, Normal: normal},
		},
		Indices: []uint32{0, 1, 2},
	}
}

// Placement is the position and rotation of an object, safe for
// concurrent use.
type Placement struct {
	mutex    sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4
}

// NewPlacement returns a placement at the origin with no rotation.
func NewPlacement() *Placement {
	return &Placement{
		position: glm.Ident4(),
		rotation: glm.Ident4(),
	}
}

// SetPosition sets the object's current position in space.
func (p *Placement) SetPosition(pos glm.Mat4) {
	p.mutex.Lock()
	p.position = pos
	p.mutex.Unlock()
}

// Position gets the object's current position in space.
func (p *Placement) Position() glm.Mat4 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.position
}

// SetRotation sets the object's rotation matrix.
func (p *Placement) SetRotation(rot glm.Mat4) {
	p.mutex.Lock()
	p.rotation = rot
	p.mutex.Unlock()
}

// Rotation gets the object's rotation matrix.
func (p *Placement) Rotation() glm.Mat4 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.rotation
}

// Transform is the rotation applied first, then the position.
func (p *Placement) Transform() glm.Mat4 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.position.Mul4(p.rotation)
}
