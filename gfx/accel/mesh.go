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

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/gfx/res"
)

const (
	vertexStride   = 12
	geometryInputs = gfx.BufferUsageAccelerationStructureBuildInputReadOnly | gfx.BufferUsageStorage
)

// NewTriangleInput describes one opaque triangle list stored in vertices
// and, unless indices is nil, indexed through indices.
func NewTriangleInput(vertices, indices *res.Buffer, vertexCount, indexCount uint32, stride uint64, indexType gfx.IndexType) (BlasInput, error) {
	vertexAddress, ok := vertices.DeviceAddress()
	if !ok {
		return BlasInput{}, errors.Wrap(gfx.ErrZeroAddress, "vertex buffer")
	}
	triangles := gfx.Triangles{
		Flags:          gfx.GeometryOpaque,
		VertexFormat:   gfx.FormatR32G32B32Sfloat,
		VertexData:     vertexAddress,
		VertexStride:   stride,
		VertexCount:    vertexCount,
		PrimitiveCount: vertexCount / 3,
		IndexType:      gfx.IndexTypeNone,
	}
	if indices != nil {
		indexAddress, ok := indices.DeviceAddress()
		if !ok {
			return BlasInput{}, errors.Wrap(gfx.ErrZeroAddress, "index buffer")
		}
		triangles.IndexData = indexAddress
		triangles.IndexType = indexType
		triangles.PrimitiveCount = indexCount / 3
	}
	if triangles.PrimitiveCount == 0 {
		return BlasInput{}, errors.Wrap(gfx.ErrNoGeometry, "less than one triangle")
	}
	return BlasInput{
		Geometries: []gfx.Geometry{triangles},
		Ranges:     []gfx.BuildRange{{PrimitiveCount: triangles.PrimitiveCount}},
	}, nil
}

// MeshBuffers are device copies of a mesh usable as build input.
type MeshBuffers struct {
	Vertices    *res.Buffer
	Indices     *res.Buffer
	VertexCount uint32
	IndexCount  uint32
	IndexType   gfx.IndexType
}

// UploadMesh copies positions and indices into host visible, device
// addressable buffers. Indices are stored as 16 bit when every vertex
// can be addressed with them.
func UploadMesh(device gfx.BufferDevice, alloc *mem.Allocator, positions []glm.Vec3, indices []uint32) (*MeshBuffers, error) {
	if len(positions) == 0 || len(indices) < 3 {
		return nil, errors.Wrap(gfx.ErrNoGeometry, "mesh")
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return nil, errors.Newf("index %d out of %d vertices", idx, len(positions))
		}
	}

	vertexData := make([]byte, len(positions)*vertexStride)
	for i, p := range positions {
		for j := 0; j < 3; j++ {
			binary.LittleEndian.PutUint32(vertexData[i*vertexStride+j*4:], math.Float32bits(p[j]))
		}
	}

	indexType := gfx.IndexTypeUint32
	var indexData []byte
	if len(positions) <= 1<<16 {
		indexType = gfx.IndexTypeUint16
		indexData = make([]byte, len(indices)*2)
		for i, idx := range indices {
			binary.LittleEndian.PutUint16(indexData[i*2:], uint16(idx))
		}
	} else {
		indexData = make([]byte, len(indices)*4)
		for i, idx := range indices {
			binary.LittleEndian.PutUint32(indexData[i*4:], idx)
		}
	}

	vertices, err := upload(device, alloc, vertexData)
	if err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}
	indexBuffer, err := upload(device, alloc, indexData)
	if err != nil {
		vertices.Release()
		return nil, errors.Wrap(err, "index buffer")
	}
	return &MeshBuffers{
		Vertices:    vertices,
		Indices:     indexBuffer,
		VertexCount: uint32(len(positions)),
		IndexCount:  uint32(len(indices)),
		IndexType:   indexType,
	}, nil
}

func upload(device gfx.BufferDevice, alloc *mem.Allocator, data []byte) (*res.Buffer, error) {
	buf, err := res.NewBuffer(device, alloc, uint64(len(data)), geometryInputs, gfx.MemoryHostAccess|gfx.MemoryDeviceAddress)
	if err != nil {
		return nil, err
	}
	if err := buf.Store(data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// Input returns the build input for the mesh.
func (m *MeshBuffers) Input() (BlasInput, error) {
	return NewTriangleInput(m.Vertices, m.Indices, m.VertexCount, m.IndexCount, vertexStride, m.IndexType)
}

// Release releases both buffers. The structures built from them do not
// reference them after the build.
func (m *MeshBuffers) Release() error {
	return errors.CombineErrors(m.Vertices.Release(), m.Indices.Release())
}
