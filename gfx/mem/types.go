// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package mem

import (
	"math/bits"
	"sort"

	"github.com/devblok/tracer/gfx"
)

// memoryTypes returns the memory type indices allowed by filter that satisfy
// the usage, best match first.
func (a *Allocator) memoryTypes(filter uint32, usage gfx.MemoryUsage) []uint32 {
	var required, preferred, unwanted gfx.MemoryPropertyFlags
	if usage.HostVisible() {
		required |= gfx.MemoryPropertyHostVisible | gfx.MemoryPropertyHostCoherent
	}
	if usage&gfx.MemoryFastDeviceAccess != 0 || !usage.HostVisible() {
		preferred |= gfx.MemoryPropertyDeviceLocal
	}
	if usage&gfx.MemoryTransient != 0 {
		preferred |= gfx.MemoryPropertyLazilyAllocated
	} else {
		unwanted |= gfx.MemoryPropertyLazilyAllocated
	}
	if usage&gfx.MemoryUpload != 0 && usage&gfx.MemoryFastDeviceAccess == 0 {
		unwanted |= gfx.MemoryPropertyDeviceLocal
	}
	if !usage.HostVisible() {
		unwanted |= gfx.MemoryPropertyHostVisible
	}

	type candidate struct {
		index uint32
		score int
	}
	var candidates []candidate
	for idx, t := range a.props.Types {
		if idx >= 32 || filter&(1<<uint(idx)) == 0 {
			continue
		}
		if t.Flags&required != required {
			continue
		}
		candidates = append(candidates, candidate{
			index: uint32(idx),
			score: 2*bits.OnesCount32(uint32(t.Flags&preferred)) - bits.OnesCount32(uint32(t.Flags&unwanted)),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]uint32, len(candidates))
	for idx, c := range candidates {
		out[idx] = c.index
	}
	return out
}
