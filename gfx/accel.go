// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// AccelerationStructureLevel matches VkAccelerationStructureTypeKHR.
type AccelerationStructureLevel uint32

// Acceleration structure levels.
const (
	TopLevel    AccelerationStructureLevel = 0
	BottomLevel AccelerationStructureLevel = 1
)

func (l AccelerationStructureLevel) String() string {
	if l == TopLevel {
		return "top"
	}
	return "bottom"
}

// BuildMode matches VkBuildAccelerationStructureModeKHR.
type BuildMode uint32

// Build modes.
const (
	BuildModeBuild  BuildMode = 0
	BuildModeUpdate BuildMode = 1
)

func (m BuildMode) String() string {
	if m == BuildModeUpdate {
		return "update"
	}
	return "build"
}

// BuildFlags match VkBuildAccelerationStructureFlagBitsKHR.
type BuildFlags uint32

// Build flags.
const (
	BuildAllowUpdate     BuildFlags = 0x01
	BuildAllowCompaction BuildFlags = 0x02
	BuildPreferFastTrace BuildFlags = 0x04
	BuildPreferFastBuild BuildFlags = 0x08
	BuildLowMemory       BuildFlags = 0x10
)

// GeometryFlags match VkGeometryFlagBitsKHR.
type GeometryFlags uint32

// Geometry flags.
const (
	GeometryOpaque            GeometryFlags = 0x1
	GeometryNoDuplicateAnyHit GeometryFlags = 0x2
)

// InstanceFlags match VkGeometryInstanceFlagBitsKHR.
type InstanceFlags uint8

// Instance flags.
const (
	InstanceTriangleFacingCullDisable InstanceFlags = 0x1
	InstanceTriangleFlipFacing        InstanceFlags = 0x2
	InstanceForceOpaque               InstanceFlags = 0x4
	InstanceForceNoOpaque             InstanceFlags = 0x8
)

// GeometryInfo describes geometry for a size query, it carries no data.
// It is either TrianglesInfo or InstancesInfo.
type GeometryInfo interface {
	isGeometryInfo()
}

// TrianglesInfo is the worst case of a triangle geometry.
type TrianglesInfo struct {
	MaxPrimitiveCount uint32
	MaxVertexCount    uint32
	VertexFormat      Format
	IndexType         IndexType
}

// InstancesInfo is the worst case of an instance geometry.
type InstancesInfo struct {
	MaxPrimitiveCount uint32
}

func (TrianglesInfo) isGeometryInfo() {}
func (InstancesInfo) isGeometryInfo() {}

// MaxPrimitiveCount returns the primitive bound of any GeometryInfo.
func MaxPrimitiveCount(info GeometryInfo) uint32 {
	switch g := info.(type) {
	case TrianglesInfo:
		return g.MaxPrimitiveCount
	case InstancesInfo:
		return g.MaxPrimitiveCount
	}
	return 0
}

// Geometry describes geometry with its data for a build.
// It is either Triangles or Instances.
type Geometry interface {
	// Info returns the sizing view of the geometry.
	Info() GeometryInfo
	isGeometry()
}

// Triangles is triangle geometry living in device memory.
// Zero IndexData means non-indexed, zero TransformData means identity.
type Triangles struct {
	Flags          GeometryFlags
	VertexFormat   Format
	VertexData     DeviceAddress
	VertexStride   uint64
	VertexCount    uint32
	FirstVertex    uint32
	PrimitiveCount uint32
	IndexType      IndexType
	IndexData      DeviceAddress
	TransformData  DeviceAddress
}

// Instances is an array of instance records living in device memory.
type Instances struct {
	Flags          GeometryFlags
	Data           DeviceAddress
	PrimitiveCount uint32
}

// Info implements interface
func (t Triangles) Info() GeometryInfo {
	indexType := t.IndexType
	if t.IndexData.IsNull() {
		indexType = IndexTypeNone
	}
	return TrianglesInfo{
		MaxPrimitiveCount: t.PrimitiveCount,
		MaxVertexCount:    t.FirstVertex + t.VertexCount,
		VertexFormat:      t.VertexFormat,
		IndexType:         indexType,
	}
}

// Info implements interface
func (i Instances) Info() GeometryInfo {
	return InstancesInfo{MaxPrimitiveCount: i.PrimitiveCount}
}

func (Triangles) isGeometry() {}
func (Instances) isGeometry() {}

// BuildRange matches VkAccelerationStructureBuildRangeInfoKHR.
type BuildRange struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BuildSizes is the result of a build size query.
type BuildSizes struct {
	AccelerationStructureSize uint64
	UpdateScratchSize         uint64
	BuildScratchSize          uint64
}

// ScratchSize returns the scratch needed by the given mode.
func (s BuildSizes) ScratchSize(mode BuildMode) uint64 {
	if mode == BuildModeUpdate {
		return s.UpdateScratchSize
	}
	return s.BuildScratchSize
}

// AccelerationStructureCreateInfo places a structure into a buffer.
type AccelerationStructureCreateInfo struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Level  AccelerationStructureLevel
}

// BuildGeometryInfo is everything a build command needs besides the ranges.
type BuildGeometryInfo struct {
	Level      AccelerationStructureLevel
	Flags      BuildFlags
	Mode       BuildMode
	Src        AccelerationStructure
	Dst        AccelerationStructure
	Geometries []Geometry
	Scratch    DeviceAddress
}
