// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package mem sub-allocates device memory pages into blocks
// that buffers and images are bound to.
package mem

import (
	"io/ioutil"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/devblok/tracer/gfx"
)

// DefaultPageSize is the size of a shared memory page.
const DefaultPageSize uint64 = 64 << 20

// Request describes the memory a resource needs.
type Request struct {
	Size      uint64
	AlignMask uint64
	Usage     gfx.MemoryUsage
	TypeBits  uint32
}

// Block is a region of a page handed out by the Allocator.
type Block struct {
	page     *page
	offset   uint64
	size     uint64
	mapped   bool
	released bool
}

// Memory returns the device memory the block lives in.
func (b *Block) Memory() gfx.Memory {
	return b.page.memory
}

// Offset returns the start of the block within its memory.
func (b *Block) Offset() uint64 {
	return b.offset
}

// Size returns the length of the block.
func (b *Block) Size() uint64 {
	return b.size
}

// HostVisible reports whether the block can be mapped.
func (b *Block) HostVisible() bool {
	return b.page.hostVisible
}

// DeviceAddressable reports whether buffers bound to the block may query their address.
func (b *Block) DeviceAddressable() bool {
	return b.page.flags&gfx.MemoryAllocateDeviceAddress != 0
}

type span struct {
	offset, size uint64
}

type page struct {
	memory      gfx.Memory
	size        uint64
	typeIndex   uint32
	flags       gfx.MemoryAllocateFlags
	hostVisible bool
	dedicated   bool

	free   []span
	blocks int

	mapping  []byte
	mapCount int
}

func (p *page) carve(size, mask uint64) (uint64, bool) {
	for idx, s := range p.free {
		start := (s.offset + mask) &^ mask
		end := s.offset + s.size
		if start < s.offset || start+size > end {
			continue
		}
		var rest []span
		if start > s.offset {
			rest = append(rest, span{s.offset, start - s.offset})
		}
		if start+size < end {
			rest = append(rest, span{start + size, end - start - size})
		}
		p.free = append(p.free[:idx], append(rest, p.free[idx+1:]...)...)
		return start, true
	}
	return 0, false
}

func (p *page) give(offset, size uint64) {
	idx := sort.Search(len(p.free), func(i int) bool {
		return p.free[i].offset > offset
	})
	p.free = append(p.free, span{})
	copy(p.free[idx+1:], p.free[idx:])
	p.free[idx] = span{offset, size}

	// merge with the following span, then with the preceding one
	if idx+1 < len(p.free) && p.free[idx].offset+p.free[idx].size == p.free[idx+1].offset {
		p.free[idx].size += p.free[idx+1].size
		p.free = append(p.free[:idx+1], p.free[idx+2:]...)
	}
	if idx > 0 && p.free[idx-1].offset+p.free[idx-1].size == p.free[idx].offset {
		p.free[idx-1].size += p.free[idx].size
		p.free = append(p.free[:idx], p.free[idx+1:]...)
	}
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPageSize sets the size of shared pages.
func WithPageSize(size uint64) Option {
	return func(a *Allocator) {
		if size > 0 {
			a.pageSize = size
		}
	}
}

// WithLogger sets the logger page events are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Allocator) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAllocator creates an allocator on top of the device memory.
// Memory properties are read once.
func NewAllocator(device gfx.MemoryDevice, opts ...Option) *Allocator {
	discard := logrus.New()
	discard.Out = ioutil.Discard

	a := &Allocator{
		device:   device,
		props:    device.MemoryProperties(),
		pageSize: DefaultPageSize,
		log:      discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocator is responsible for returning usable memory for any resource
// that may need it. It is safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	device   gfx.MemoryDevice
	props    gfx.MemoryProperties
	pageSize uint64
	pages    []*page
	log      logrus.FieldLogger
}

// Allocate returns a block satisfying the request, allocating a new page
// when no existing page has room.
func (a *Allocator) Allocate(req Request) (*Block, error) {
	if req.Size == 0 || !(gfx.BufferInfo{Align: req.AlignMask, Size: req.Size}).IsValid() {
		return nil, errors.Wrapf(gfx.ErrInvalidBufferInfo, "size %d align mask 0x%x", req.Size, req.AlignMask)
	}
	size := (req.Size + req.AlignMask) &^ req.AlignMask

	candidates := a.memoryTypes(req.TypeBits, req.Usage)
	if len(candidates) == 0 {
		return nil, errors.Wrapf(gfx.ErrOutOfMemory, "no memory type in 0x%x suits usage 0x%x", req.TypeBits, req.Usage)
	}

	var flags gfx.MemoryAllocateFlags
	if req.Usage&gfx.MemoryDeviceAddress != 0 {
		flags |= gfx.MemoryAllocateDeviceAddress
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, typeIndex := range candidates {
		for _, p := range a.pages {
			if p.dedicated || p.typeIndex != typeIndex || p.flags != flags {
				continue
			}
			if offset, ok := p.carve(size, req.AlignMask); ok {
				p.blocks++
				return &Block{page: p, offset: offset, size: size}, nil
			}
		}
	}

	dedicated := size > a.pageSize/2
	pageSize := a.pageSize
	if dedicated {
		pageSize = size
	}

	var lastErr error
	for _, typeIndex := range candidates {
		memory, err := a.device.AllocateMemory(pageSize, typeIndex, flags)
		if err != nil {
			lastErr = err
			continue
		}
		p := &page{
			memory:      memory,
			size:        pageSize,
			typeIndex:   typeIndex,
			flags:       flags,
			hostVisible: a.props.Types[typeIndex].Flags&gfx.MemoryPropertyHostVisible != 0,
			dedicated:   dedicated,
			free:        []span{{0, pageSize}},
		}
		a.pages = append(a.pages, p)
		a.log.WithFields(logrus.Fields{
			"type":      typeIndex,
			"size":      pageSize,
			"dedicated": dedicated,
		}).Debug("allocated memory page")

		offset, _ := p.carve(size, req.AlignMask)
		p.blocks++
		return &Block{page: p, offset: offset, size: size}, nil
	}
	return nil, errors.Wrapf(errors.Mark(lastErr, gfx.ErrOutOfMemory), "allocating %d bytes", pageSize)
}

// Release returns the block to its page. Releasing a block twice is an error.
func (a *Allocator) Release(b *Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b == nil || b.released {
		a.log.Error("memory block released twice")
		return errors.Wrap(gfx.ErrReleased, "memory block")
	}
	if !a.owns(b.page) {
		return errors.New("memory block does not belong to this allocator")
	}
	if b.mapped {
		a.unmap(b)
	}
	b.released = true

	p := b.page
	p.give(b.offset, b.size)
	p.blocks--
	if p.blocks == 0 && p.dedicated {
		a.freePage(p)
	}
	return nil
}

// Map maps the block for host access. Pages are mapped once
// and shared between all mapped blocks of the page.
func (a *Allocator) Map(b *Block) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b.released {
		return nil, errors.Wrap(gfx.ErrReleased, "map")
	}
	if !b.page.hostVisible {
		return nil, gfx.ErrNotHostVisible
	}
	if b.mapped {
		return b.page.mapping[b.offset : b.offset+b.size], nil
	}

	p := b.page
	if p.mapCount == 0 {
		mapping, err := a.device.MapMemory(p.memory, 0, p.size)
		if err != nil {
			return nil, errors.Wrap(err, "vk.MapMemory()")
		}
		p.mapping = mapping
	}
	p.mapCount++
	b.mapped = true
	return p.mapping[b.offset : b.offset+b.size], nil
}

// Unmap drops the host mapping of the block.
func (a *Allocator) Unmap(b *Block) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.mapped {
		a.unmap(b)
	}
}

func (a *Allocator) unmap(b *Block) {
	b.mapped = false
	p := b.page
	p.mapCount--
	if p.mapCount == 0 {
		a.device.UnmapMemory(p.memory)
		p.mapping = nil
	}
}

// Trim frees pages that hold no blocks.
func (a *Allocator) Trim() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var freed int
	for _, p := range append([]*page(nil), a.pages...) {
		if p.blocks == 0 {
			a.freePage(p)
			freed++
		}
	}
	return freed
}

// Stats describes the allocator state.
type Stats struct {
	Pages     int
	Blocks    int
	Reserved  uint64
	Available uint64
}

// Stats returns a snapshot of the allocator state.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Stats
	for _, p := range a.pages {
		s.Pages++
		s.Blocks += p.blocks
		s.Reserved += p.size
		for _, f := range p.free {
			s.Available += f.size
		}
	}
	return s
}

// Destroy frees every page, live blocks become invalid.
func (a *Allocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range append([]*page(nil), a.pages...) {
		if p.blocks > 0 {
			a.log.WithField("blocks", p.blocks).Warn("freeing memory page with live blocks")
		}
		a.freePage(p)
	}
}

func (a *Allocator) freePage(p *page) {
	if p.mapCount > 0 {
		a.device.UnmapMemory(p.memory)
		p.mapCount = 0
		p.mapping = nil
	}
	a.device.FreeMemory(p.memory)
	for idx, other := range a.pages {
		if other == p {
			a.pages = append(a.pages[:idx], a.pages[idx+1:]...)
			break
		}
	}
	a.log.WithFields(logrus.Fields{
		"type": p.typeIndex,
		"size": p.size,
	}).Debug("freed memory page")
}

func (a *Allocator) owns(p *page) bool {
	for _, other := range a.pages {
		if other == p {
			return true
		}
	}
	return false
}
