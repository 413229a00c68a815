package bridge

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Dedup remembers the hashes of the last few payloads a client sent so the
// echo of each one can be recognised and skipped exactly once.
type Dedup struct {
	mu     sync.Mutex
	size   int
	hashes []uint64 // oldest first
}

func NewDedup(size int) *Dedup {
	return &Dedup{size: max(size, 1)}
}

func (d *Dedup) Remember(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.hashes) == d.size {
		d.hashes = d.hashes[1:]
	}
	d.hashes = append(d.hashes, xxhash.Sum64(payload))
}

// Seen reports whether payload is a pending echo and forgets it if so.
func (d *Dedup) Seen(payload []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.Index(d.hashes, xxhash.Sum64(payload))
	if i < 0 {
		return false
	}
	d.hashes = slices.Delete(d.hashes, i, i+1)
	return true
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hashes)
}
