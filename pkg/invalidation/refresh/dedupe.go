// Package refresh tracks the last applied refresh version per table.
package refresh

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type Dedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, uint64](size)
	return &Dedupe{lru: c}
}

// Fresh reports whether v is newer than the last version recorded for key.
func (d *Dedupe) Fresh(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return false
	}
	return true
}

// Record stores v once it has been applied. Older versions never overwrite a newer one.
func (d *Dedupe) Record(key string, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return
	}
	d.lru.Add(key, v)
}

func (d *Dedupe) Last(key string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.Get(key)
}
