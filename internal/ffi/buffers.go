package ffi

import (
	"fmt"
	"sync"
)

// Buffers tracks the output buffers handed to the caller so each is freed
// exactly once. Addresses are opaque here; the cgo layer allocates and
// frees the memory.
type Buffers struct {
	mu   sync.Mutex
	live map[uintptr]int
}

// NewBuffers creates an empty tracker.
func NewBuffers() *Buffers {
	return &Buffers{live: make(map[uintptr]int)}
}

// Track records a buffer of size bytes at ptr.
func (b *Buffers) Track(ptr uintptr, size int) {
	if ptr == 0 {
		return
	}
	b.mu.Lock()
	b.live[ptr] = size
	b.mu.Unlock()
}

// Release forgets ptr. It returns an error, and the caller must not free
// the memory, when ptr is not a live buffer: a double free or a pointer
// the library never returned.
func (b *Buffers) Release(ptr uintptr) error {
	if ptr == 0 {
		return ErrNullPointer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[ptr]; !ok {
		return fmt.Errorf("buffer %#x was not returned by the library or is already freed", ptr)
	}
	delete(b.live, ptr)
	return nil
}

// Live returns the number of buffers not yet released and their total
// size.
func (b *Buffers) Live() (count, bytes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.live {
		bytes += n
	}
	return len(b.live), bytes
}
