// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package registry keeps live native objects in slabs addressed by small
// stable integer keys, so they can be torn down in bulk.
package registry

import "sync"

const indexBits = 32

// Slab stores values under stable keys. Key 0 is never handed out,
// so a zero key can serve as a null handle.
//
// A key holds the slot index in its low 32 bits and the generation of the
// slot in the high 32 bits. A slot's generation moves on every time its
// value is removed, so a key outliving its value never matches the value
// stored in the slot next.
type Slab[T any] struct {
	mu      sync.Mutex
	entries []slot[T]
	free    []uint32
	live    int
}

type slot[T any] struct {
	value    T
	gen      uint32
	occupied bool
}

func key(index, gen uint32) uint64 {
	return uint64(index) | uint64(gen)<<indexBits
}

func split(k uint64) (index, gen uint32) {
	return uint32(k), uint32(k >> indexBits)
}

// Insert stores v and returns its key.
func (s *Slab[T]) Insert(v T) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live++
	if n := len(s.free); n > 0 {
		index := s.free[n-1]
		s.free = s.free[:n-1]
		e := &s.entries[index-1]
		e.value, e.occupied = v, true
		return key(index, e.gen)
	}
	s.entries = append(s.entries, slot[T]{value: v, occupied: true})
	return key(uint32(len(s.entries)), 0)
}

// Get returns the value stored under key.
func (s *Slab[T]) Get(k uint64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(k)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Remove takes the value out of the slab. The slot is reused under a new key.
func (s *Slab[T]) Remove(k uint64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	e, ok := s.lookup(k)
	if !ok {
		return zero, false
	}
	v := e.value
	s.vacate(e)
	index, _ := split(k)
	s.free = append(s.free, index)
	s.live--
	return v, true
}

// Len returns the number of live entries.
func (s *Slab[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Drain removes every live entry, calling fn on each one in slot order,
// and returns how many were drained. fn must not call back into the slab.
func (s *Slab[T]) Drain(fn func(key uint64, v T)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var drained int
	s.free = s.free[:0]
	for idx := len(s.entries) - 1; idx >= 0; idx-- {
		s.free = append(s.free, uint32(idx+1))
	}
	for idx := range s.entries {
		e := &s.entries[idx]
		if !e.occupied {
			continue
		}
		fn(key(uint32(idx+1), e.gen), e.value)
		s.vacate(e)
		drained++
	}
	s.live = 0
	return drained
}

func (s *Slab[T]) vacate(e *slot[T]) {
	var zero T
	e.value, e.occupied = zero, false
	e.gen++
}

func (s *Slab[T]) lookup(k uint64) (*slot[T], bool) {
	index, gen := split(k)
	if index == 0 || int(index) > len(s.entries) {
		return nil, false
	}
	e := &s.entries[index-1]
	if !e.occupied || e.gen != gen {
		return nil, false
	}
	return e, true
}
