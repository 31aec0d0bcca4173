package network

import (
	"sync"

	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
)

// DefaultCapacity is the number of records a Buffer keeps
const DefaultCapacity = 1000

// Buffer is a fixed-capacity ring of records; adding past capacity evicts
// the oldest record.
type Buffer struct {
	mu      sync.RWMutex
	records []domain.NetworkRecord
	start   int
	size    int
	evicted int
}

// NewBuffer creates a buffer, non-positive capacity means DefaultCapacity
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{records: make([]domain.NetworkRecord, capacity)}
}

// Add appends a record and reports whether an older record was evicted
func (b *Buffer) Add(rec domain.NetworkRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.records)
	if b.size < capacity {
		b.records[(b.start+b.size)%capacity] = rec
		b.size++
		return false
	}
	b.records[b.start] = rec
	b.start = (b.start + 1) % capacity
	b.evicted++
	return true
}

// All returns the records oldest first
func (b *Buffer) All() []domain.NetworkRecord {
	return b.Recent(b.Cap())
}

// Recent returns up to n newest records, oldest first
func (b *Buffer) Recent(n int) []domain.NetworkRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n = min(max(n, 0), b.size)
	out := make([]domain.NetworkRecord, 0, n)
	capacity := len(b.records)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.records[(b.start+i)%capacity].Clone())
	}
	return out
}

// Failed returns the buffered records with an HTTP error status
func (b *Buffer) Failed() []domain.NetworkRecord {
	return lo.Filter(b.All(), func(r domain.NetworkRecord, _ int) bool { return r.Failed() })
}

// Len returns the number of buffered records
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	return len(b.records)
}

// Evicted returns how many records were dropped for capacity
func (b *Buffer) Evicted() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}

// Clear empties the buffer
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.records)
	b.start, b.size = 0, 0
}
