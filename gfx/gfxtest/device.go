// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device for tests.
// It counts every call, backs host visible memory with byte slices
// and records the commands written into command buffers.
package gfxtest

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/devblok/tracer/gfx"
	"github.com/devblok/tracer/gfx/descriptor"
)

// ErrInjected is returned by calls that were set up to fail.
var ErrInjected = errors.New("gfxtest: injected failure")

// BuildCommand is a recorded acceleration structure build.
type BuildCommand struct {
	Info   gfx.BuildGeometryInfo
	Ranges []gfx.BuildRange
}

// BarrierCommand is a recorded pipeline barrier.
type BarrierCommand struct {
	Src, Dst gfx.PipelineStageFlags
	Barriers []gfx.MemoryBarrier
}

// Command is one recorded command, exactly one of Build and Barrier is set.
type Command struct {
	Buffer  gfx.CommandBuffer
	Build   *BuildCommand
	Barrier *BarrierCommand
}

type memory struct {
	data      []byte
	typeIndex uint32
	flags     gfx.MemoryAllocateFlags
	address   uint64
	mapped    bool
}

type buffer struct {
	size   uint64
	usage  gfx.BufferUsageFlags
	mem    gfx.Memory
	offset uint64
	bound  bool
}

type commandBuffer struct {
	pool      gfx.CommandPool
	recording bool
	commands  []Command
}

type failure struct {
	at  int
	err error
}

// Device is a fake gfx.Device. The zero value is not usable, use NewDevice.
type Device struct {
	mu sync.Mutex

	props  gfx.MemoryProperties
	limits gfx.Limits

	calls      map[string]int
	total      int
	failures   map[string]failure
	destroyed  map[string]map[uint64]int
	nextHandle uint64
	nextAddr   uint64

	memories       map[gfx.Memory]*memory
	buffers        map[gfx.Buffer]*buffer
	images         map[gfx.Image]gfx.ImageInfo
	structures     map[gfx.AccelerationStructure]gfx.AccelerationStructureCreateInfo
	pools          map[gfx.CommandPool]bool
	commandBuffers map[gfx.CommandBuffer]*commandBuffer
	fences         map[gfx.Fence]bool
	shaders        map[gfx.ShaderModule][]uint32

	submitted []Command
	writes    []descriptor.Write

	// FenceTimeout makes every fence wait time out.
	FenceTimeout bool

	// Sizes answers build size queries, DefaultSizes is used when nil.
	Sizes func(level gfx.AccelerationStructureLevel, geometries []gfx.GeometryInfo) gfx.BuildSizes
}

// DefaultMemoryProperties exposes a device local type, a host visible
// type and a type that is both.
var DefaultMemoryProperties = gfx.MemoryProperties{
	Types: []gfx.MemoryType{
		{Flags: gfx.MemoryPropertyDeviceLocal, Heap: 0},
		{Flags: gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent, Heap: 1},
		{Flags: gfx.MemoryPropertyDeviceLocal | gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent, Heap: 0},
	},
	Heaps: []gfx.MemoryHeap{
		{Size: 1 << 30, DeviceLocal: true},
		{Size: 1 << 30},
	},
}

// NewDevice returns a fake device with DefaultMemoryProperties.
func NewDevice() *Device {
	return NewDeviceWithMemory(DefaultMemoryProperties)
}

// NewDeviceWithMemory returns a fake device exposing the given memory.
func NewDeviceWithMemory(props gfx.MemoryProperties) *Device {
	return &Device{
		props:          props,
		limits:         gfx.Limits{MinScratchOffsetAlignment: 128, MaxInstanceCount: 1 << 24},
		calls:          map[string]int{},
		failures:       map[string]failure{},
		destroyed:      map[string]map[uint64]int{},
		nextAddr:       0x10000000,
		memories:       map[gfx.Memory]*memory{},
		buffers:        map[gfx.Buffer]*buffer{},
		images:         map[gfx.Image]gfx.ImageInfo{},
		structures:     map[gfx.AccelerationStructure]gfx.AccelerationStructureCreateInfo{},
		pools:          map[gfx.CommandPool]bool{},
		commandBuffers: map[gfx.CommandBuffer]*commandBuffer{},
		fences:         map[gfx.Fence]bool{},
		shaders:        map[gfx.ShaderModule][]uint32{},
	}
}

// DefaultSizes derives deterministic sizes from the primitive counts.
func DefaultSizes(level gfx.AccelerationStructureLevel, geometries []gfx.GeometryInfo) gfx.BuildSizes {
	var prims uint64
	for _, g := range geometries {
		prims += uint64(gfx.MaxPrimitiveCount(g))
	}
	if level == gfx.TopLevel {
		return gfx.BuildSizes{
			AccelerationStructureSize: 2048 + 128*prims,
			BuildScratchSize:          1024 + 64*prims,
			UpdateScratchSize:         512 + 32*prims,
		}
	}
	return gfx.BuildSizes{
		AccelerationStructureSize: 1024 + 256*prims,
		BuildScratchSize:          512 + 128*prims,
		UpdateScratchSize:         256 + 64*prims,
	}
}

// FailAt makes the n-th call (1-based) to method fail with ErrInjected.
func (d *Device) FailAt(method string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = failure{at: d.calls[method] + n, err: ErrInjected}
}

// Calls returns the total number of device calls.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Count returns the number of calls made to method.
func (d *Device) Count(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// DestroyCount returns how often the handle was passed to method.
func (d *Device) DestroyCount(method string, handle uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[method][handle]
}

// Live returns the number of live objects per kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]int{
		"memory":     len(d.memories),
		"buffer":     len(d.buffers),
		"image":      len(d.images),
		"structure":  len(d.structures),
		"pool":       len(d.pools),
		"fence":      len(d.fences),
		"cmdbuffers": len(d.commandBuffers),
		"shader":     len(d.shaders),
	}
}

// Submitted returns the commands of every submitted command buffer, in submission order.
func (d *Device) Submitted() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.submitted...)
}

// Structure returns the create info of a live acceleration structure.
func (d *Device) Structure(as gfx.AccelerationStructure) (gfx.AccelerationStructureCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.structures[as]
	return info, ok
}

// BufferSize returns the size a live buffer was created with.
func (d *Device) BufferSize(buf gfx.Buffer) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[buf]
	if !ok {
		return 0, false
	}
	return b.size, true
}

// MemoryBytes returns the backing store of an allocation.
func (d *Device) MemoryBytes(mem gfx.Memory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.memories[mem]; ok {
		return m.data
	}
	return nil
}

// call must be called with the lock held.
func (d *Device) call(method string) error {
	d.calls[method]++
	d.total++
	if f, ok := d.failures[method]; ok && f.at == d.calls[method] {
		delete(d.failures, method)
		return errors.Wrap(f.err, method)
	}
	return nil
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) destroy(method string, handle uint64) {
	if d.destroyed[method] == nil {
		d.destroyed[method] = map[uint64]int{}
	}
	d.destroyed[method][handle]++
}

// Limits implements interface
func (d *Device) Limits() gfx.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("Limits")
	return d.limits
}

// MemoryProperties implements interface
func (d *Device) MemoryProperties() gfx.MemoryProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("MemoryProperties")
	return d.props
}

// AllocateMemory implements interface
func (d *Device) AllocateMemory(size uint64, typeIndex uint32, flags gfx.MemoryAllocateFlags) (gfx.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AllocateMemory"); err != nil {
		return gfx.NullMemory, err
	}
	if int(typeIndex) >= len(d.props.Types) {
		return gfx.NullMemory, errors.Newf("gfxtest: memory type %d does not exist", typeIndex)
	}
	m := &memory{data: make([]byte, size), typeIndex: typeIndex, flags: flags}
	if flags&gfx.MemoryAllocateDeviceAddress != 0 {
		m.address = d.nextAddr
		d.nextAddr += (size + 0xffff) &^ 0xffff
	}
	h := gfx.Memory(d.handle())
	d.memories[h] = m
	return h, nil
}

// FreeMemory implements interface
func (d *Device) FreeMemory(mem gfx.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("FreeMemory")
	d.destroy("FreeMemory", uint64(mem))
	delete(d.memories, mem)
}

// MapMemory implements interface
func (d *Device) MapMemory(mem gfx.Memory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("MapMemory"); err != nil {
		return nil, err
	}
	m, ok := d.memories[mem]
	if !ok {
		return nil, errors.New("gfxtest: map of unknown memory")
	}
	if d.props.Types[m.typeIndex].Flags&gfx.MemoryPropertyHostVisible == 0 {
		return nil, errors.New("gfxtest: memory is not host visible")
	}
	if m.mapped {
		return nil, errors.New("gfxtest: memory is already mapped")
	}
	if offset+size > uint64(len(m.data)) {
		return nil, errors.New("gfxtest: map range out of bounds")
	}
	m.mapped = true
	return m.data[offset : offset+size : offset+size], nil
}

// UnmapMemory implements interface
func (d *Device) UnmapMemory(mem gfx.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("UnmapMemory")
	if m, ok := d.memories[mem]; ok {
		m.mapped = false
	}
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(size uint64, usage gfx.BufferUsageFlags) (gfx.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateBuffer"); err != nil {
		return gfx.NullBuffer, err
	}
	if size == 0 {
		return gfx.NullBuffer, errors.New("gfxtest: zero sized buffer")
	}
	h := gfx.Buffer(d.handle())
	d.buffers[h] = &buffer{size: size, usage: usage}
	return h, nil
}

// DestroyBuffer implements interface
func (d *Device) DestroyBuffer(buf gfx.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyBuffer")
	d.destroy("DestroyBuffer", uint64(buf))
	delete(d.buffers, buf)
}

// BufferMemoryRequirements implements interface
func (d *Device) BufferMemoryRequirements(buf gfx.Buffer) gfx.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("BufferMemoryRequirements")
	b, ok := d.buffers[buf]
	if !ok {
		return gfx.MemoryRequirements{}
	}
	return gfx.MemoryRequirements{
		Size:      (b.size + 255) &^ 255,
		Alignment: 256,
		TypeBits:  1<<uint(len(d.props.Types)) - 1,
	}
}

// BindBufferMemory implements interface
func (d *Device) BindBufferMemory(buf gfx.Buffer, mem gfx.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BindBufferMemory"); err != nil {
		return err
	}
	b, ok := d.buffers[buf]
	if !ok {
		return errors.New("gfxtest: bind of unknown buffer")
	}
	m, ok := d.memories[mem]
	if !ok {
		return errors.New("gfxtest: bind to unknown memory")
	}
	if offset+b.size > uint64(len(m.data)) {
		return errors.New("gfxtest: buffer does not fit its memory")
	}
	b.mem, b.offset, b.bound = mem, offset, true
	return nil
}

// BufferDeviceAddress implements interface
func (d *Device) BufferDeviceAddress(buf gfx.Buffer) (gfx.DeviceAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BufferDeviceAddress"); err != nil {
		return 0, err
	}
	b, ok := d.buffers[buf]
	if !ok || !b.bound {
		return 0, errors.New("gfxtest: address of unbound buffer")
	}
	if b.usage&gfx.BufferUsageShaderDeviceAddress == 0 {
		return 0, errors.New("gfxtest: buffer lacks device address usage")
	}
	m := d.memories[b.mem]
	if m.flags&gfx.MemoryAllocateDeviceAddress == 0 {
		return 0, errors.New("gfxtest: memory lacks device address flag")
	}
	return gfx.NewDeviceAddress(m.address + b.offset)
}

// CreateImage implements interface
func (d *Device) CreateImage(info gfx.ImageInfo) (gfx.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateImage"); err != nil {
		return gfx.NullImage, err
	}
	h := gfx.Image(d.handle())
	d.images[h] = info
	return h, nil
}

// DestroyImage implements interface
func (d *Device) DestroyImage(img gfx.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyImage")
	d.destroy("DestroyImage", uint64(img))
	delete(d.images, img)
}

// ImageMemoryRequirements implements interface
func (d *Device) ImageMemoryRequirements(img gfx.Image) gfx.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("ImageMemoryRequirements")
	info := d.images[img]
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * uint64(info.Extent.Depth) * 16
	return gfx.MemoryRequirements{
		Size:      (size + 0xffff) &^ 0xffff,
		Alignment: 0x10000,
		TypeBits:  1,
	}
}

// BindImageMemory implements interface
func (d *Device) BindImageMemory(img gfx.Image, mem gfx.Memory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BindImageMemory"); err != nil {
		return err
	}
	if _, ok := d.images[img]; !ok {
		return errors.New("gfxtest: bind of unknown image")
	}
	if _, ok := d.memories[mem]; !ok {
		return errors.New("gfxtest: bind to unknown memory")
	}
	return nil
}

// AccelerationStructureBuildSizes implements interface
func (d *Device) AccelerationStructureBuildSizes(level gfx.AccelerationStructureLevel, flags gfx.BuildFlags, geometries []gfx.GeometryInfo) (gfx.BuildSizes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AccelerationStructureBuildSizes"); err != nil {
		return gfx.BuildSizes{}, err
	}
	if d.Sizes != nil {
		return d.Sizes(level, geometries), nil
	}
	return DefaultSizes(level, geometries), nil
}

// CreateAccelerationStructure implements interface
func (d *Device) CreateAccelerationStructure(info gfx.AccelerationStructureCreateInfo) (gfx.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateAccelerationStructure"); err != nil {
		return gfx.NullAccelerationStructure, err
	}
	b, ok := d.buffers[info.Buffer]
	if !ok || !b.bound {
		return gfx.NullAccelerationStructure, errors.New("gfxtest: structure on unbound buffer")
	}
	if b.usage&gfx.BufferUsageAccelerationStructureStorage == 0 {
		return gfx.NullAccelerationStructure, errors.New("gfxtest: buffer lacks structure storage usage")
	}
	if info.Offset+info.Size > b.size {
		return gfx.NullAccelerationStructure, errors.New("gfxtest: structure does not fit its buffer")
	}
	h := gfx.AccelerationStructure(d.handle())
	d.structures[h] = info
	return h, nil
}

// DestroyAccelerationStructure implements interface
func (d *Device) DestroyAccelerationStructure(as gfx.AccelerationStructure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyAccelerationStructure")
	d.destroy("DestroyAccelerationStructure", uint64(as))
	delete(d.structures, as)
}

// AccelerationStructureDeviceAddress implements interface
func (d *Device) AccelerationStructureDeviceAddress(as gfx.AccelerationStructure) (gfx.DeviceAddress, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AccelerationStructureDeviceAddress"); err != nil {
		return 0, err
	}
	info, ok := d.structures[as]
	if !ok {
		return 0, errors.New("gfxtest: address of unknown structure")
	}
	b := d.buffers[info.Buffer]
	m := d.memories[b.mem]
	return gfx.NewDeviceAddress(m.address + b.offset + info.Offset)
}

// CreateCommandPool implements interface
func (d *Device) CreateCommandPool(queueFamily uint32, flags gfx.CommandPoolFlags) (gfx.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateCommandPool"); err != nil {
		return 0, err
	}
	h := gfx.CommandPool(d.handle())
	d.pools[h] = true
	return h, nil
}

// DestroyCommandPool implements interface
func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyCommandPool")
	d.destroy("DestroyCommandPool", uint64(pool))
	delete(d.pools, pool)
	for h, cb := range d.commandBuffers {
		if cb.pool == pool {
			delete(d.commandBuffers, h)
		}
	}
}

// AllocateCommandBuffers implements interface
func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, level gfx.CommandBufferLevel, count uint32) ([]gfx.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	if !d.pools[pool] {
		return nil, errors.New("gfxtest: unknown command pool")
	}
	out := make([]gfx.CommandBuffer, count)
	for i := range out {
		out[i] = gfx.CommandBuffer(d.handle())
		d.commandBuffers[out[i]] = &commandBuffer{pool: pool}
	}
	return out, nil
}

// FreeCommandBuffers implements interface
func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("FreeCommandBuffers")
	for _, cb := range buffers {
		d.destroy("FreeCommandBuffers", uint64(cb))
		delete(d.commandBuffers, cb)
	}
}

// BeginCommandBuffer implements interface
func (d *Device) BeginCommandBuffer(cmd gfx.CommandBuffer, usage gfx.CommandBufferUsage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("BeginCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[cmd]
	if !ok {
		return errors.New("gfxtest: begin of unknown command buffer")
	}
	cb.recording = true
	cb.commands = nil
	return nil
}

// EndCommandBuffer implements interface
func (d *Device) EndCommandBuffer(cmd gfx.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("EndCommandBuffer"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[cmd]
	if !ok || !cb.recording {
		return errors.New("gfxtest: end of a command buffer that is not recording")
	}
	cb.recording = false
	return nil
}

// QueueSubmit implements interface
func (d *Device) QueueSubmit(queue gfx.Queue, buffers []gfx.CommandBuffer, fence gfx.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("QueueSubmit"); err != nil {
		return err
	}
	for _, h := range buffers {
		cb, ok := d.commandBuffers[h]
		if !ok {
			return errors.New("gfxtest: submit of unknown command buffer")
		}
		if cb.recording {
			return errors.New("gfxtest: submit of a command buffer that is still recording")
		}
		d.submitted = append(d.submitted, cb.commands...)
	}
	if fence != gfx.NullFence {
		d.fences[fence] = true
	}
	return nil
}

// QueueWaitIdle implements interface
func (d *Device) QueueWaitIdle(queue gfx.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call("QueueWaitIdle")
}

// CreateFence implements interface
func (d *Device) CreateFence() (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CreateFence"); err != nil {
		return gfx.NullFence, err
	}
	h := gfx.Fence(d.handle())
	d.fences[h] = false
	return h, nil
}

// WaitForFence implements interface
func (d *Device) WaitForFence(fence gfx.Fence, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("WaitForFence"); err != nil {
		return err
	}
	if d.FenceTimeout || !d.fences[fence] {
		return gfx.ErrTimeout
	}
	return nil
}

// DestroyFence implements interface
func (d *Device) DestroyFence(fence gfx.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call("DestroyFence")
	d.destroy("DestroyFence", uint64(fence))
	delete(d.fences, fence)
}

// CmdPipelineBarrier implements interface
func (d *Device) CmdPipelineBarrier(cmd gfx.CommandBuffer, src, dst gfx.PipelineStageFlags, barriers []gfx.MemoryBarrier) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CmdPipelineBarrier"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[cmd]
	if !ok || !cb.recording {
		return errors.New("gfxtest: barrier into a command buffer that is not recording")
	}
	cb.commands = append(cb.commands, Command{
		Buffer:  cmd,
		Barrier: &BarrierCommand{Src: src, Dst: dst, Barriers: append([]gfx.MemoryBarrier(nil), barriers...)},
	})
	return nil
}

// CmdBuildAccelerationStructure implements interface
func (d *Device) CmdBuildAccelerationStructure(cmd gfx.CommandBuffer, info gfx.BuildGeometryInfo, ranges []gfx.BuildRange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.call("CmdBuildAccelerationStructure"); err != nil {
		return err
	}
	cb, ok := d.commandBuffers[cmd]
	if !ok || !cb.recording {
		return errors.New("gfxtest: build into a command buffer that is not recording")
	}
	if _, ok := d.structures[info.Dst]; !ok {
		return errors.New("gfxtest: build into unknown structure")
	}
	info.Geometries = append([]gfx.Geometry(nil), info.Geometries...)
	cb.commands = append(cb.commands, Command{
		Buffer: cmd,
		Build:  &BuildCommand{Info: info, Ranges: append([]gfx.BuildRange(nil), ranges...)},
	})
	return nil
}

// Methods returns the names of every method called so far, sorted.
func (d *Device) Methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name := range d.calls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ gfx.Device = (*Device)(nil)
