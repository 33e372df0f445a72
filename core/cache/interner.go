package cache

import "sync"

// DefaultInternerCapacity bounds the process-wide interner.
const DefaultInternerCapacity = 10000

// maxInternLength is the longest string worth interning. Longer strings are
// returned as-is.
const maxInternLength = 256

// Interner deduplicates short immutable strings such as font names and
// control words. It holds at most its capacity and evicts least recently
// used entries.
type Interner struct {
	lru Cache[string, string]
}

// NewInterner creates an interner holding at most capacity strings.
func NewInterner(capacity int) *Interner {
	if capacity <= 0 {
		capacity = DefaultInternerCapacity
	}
	return &Interner{lru: NewLRUCache[string, string](Config{MaxSize: capacity})}
}

// Intern returns a canonical copy of s.
func (in *Interner) Intern(s string) string {
	if s == "" || len(s) > maxInternLength {
		return s
	}
	if v, ok := in.lru.Get(s); ok {
		return v
	}
	in.lru.Put(s, s)
	return s
}

// Len returns the number of interned strings.
func (in *Interner) Len() int { return in.lru.Len() }

// Stats returns hit and eviction statistics.
func (in *Interner) Stats() Stats { return in.lru.Stats() }

// Clear drops every interned string.
func (in *Interner) Clear() { in.lru.Clear() }

var (
	sharedOnce sync.Once
	shared     *Interner
)

// Shared returns the process-wide interner.
func Shared() *Interner {
	sharedOnce.Do(func() {
		shared = NewInterner(DefaultInternerCapacity)
	})
	return shared
}
