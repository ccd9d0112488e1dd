// Package pingpong implements a two-slot frame hand-off between one writer and one reader.
//
// The writer never waits for the reader: every Write lands in the slot that is not
// holding the newest item, evicting whatever unread item was there. The reader always
// gets the newest item available at read time. Frames may be skipped under load;
// freshness wins over completeness.
//
// Only metadata (ready flags, sequence numbers, the write index) is guarded by the
// mutex. Item values are handed over by reference: a writer fills its value before
// calling Write and a reader owns the value it got back from ReadLatest.
package pingpong

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const numSlots = 2

// Item is a buffered value tagged with its sequence number and write time.
type Item[T any] struct {
	Value T
	Seq   uint64
	Time  time.Time
}

type slot[T any] struct {
	item  Item[T]
	ready bool
}

type Stats struct {
	Written uint64
	Read    uint64
	Dropped uint64
}

type Buffer[T any] struct {
	mu       sync.Mutex
	slots    [numSlots]slot[T]
	writeIdx int
	seq      uint64

	// notify holds at most one pending wake-up for a waiting reader.
	notify chan struct{}

	release func(T)
	now     func() time.Time

	written atomic.Uint64
	read    atomic.Uint64
	dropped atomic.Uint64
}

type Option[T any] func(*Buffer[T])

// WithRelease sets the function called on items that are evicted or drained
// without being read. Use it to free frame memory.
func WithRelease[T any](release func(T)) Option[T] {
	return func(b *Buffer[T]) {
		b.release = release
	}
}

// WithClock overrides the time source of item timestamps.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(b *Buffer[T]) {
		b.now = now
	}
}

func New[T any](opts ...Option[T]) *Buffer[T] {
	b := &Buffer[T]{
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Write stores v in the slot not holding the newest item and returns its sequence number.
//
// It never blocks on the reader. An unread item in the target slot is released.
func (b *Buffer[T]) Write(v T) uint64 {
	at := b.now()

	b.mu.Lock()
	idx := b.writeIdx
	evicted, hadEvicted := b.slots[idx].item, b.slots[idx].ready

	b.seq++
	seq := b.seq
	b.slots[idx] = slot[T]{
		item:  Item[T]{Value: v, Seq: seq, Time: at},
		ready: true,
	}
	b.writeIdx = (idx + 1) % numSlots
	b.mu.Unlock()

	b.written.Add(1)
	if hadEvicted {
		b.drop(evicted.Value)
	}

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return seq
}

// ReadLatest returns the newest ready item and marks it consumed.
//
// It waits up to timeout for a write when nothing is ready; a zero timeout polls once.
// The boolean is false when no item became ready in time or ctx was cancelled.
// Ready items older than the returned one are released, so a following read only
// ever sees newer writes.
func (b *Buffer[T]) ReadLatest(ctx context.Context, timeout time.Duration) (Item[T], bool) {
	if item, ok := b.take(); ok {
		return item, true
	}

	var zero Item[T]
	if timeout <= 0 {
		return zero, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, false

		case <-timer.C:
			return b.take()

		case <-b.notify:
			if item, ok := b.take(); ok {
				return item, true
			}
		}
	}
}

func (b *Buffer[T]) take() (Item[T], bool) {
	var (
		item  Item[T]
		found = -1
		stale []T
	)

	b.mu.Lock()
	for i := range b.slots {
		if !b.slots[i].ready {
			continue
		}
		if found < 0 || b.slots[i].item.Seq > b.slots[found].item.Seq {
			found = i
		}
	}

	if found >= 0 {
		item = b.slots[found].item
		b.slots[found] = slot[T]{}

		for i := range b.slots {
			if b.slots[i].ready {
				stale = append(stale, b.slots[i].item.Value)
				b.slots[i] = slot[T]{}
			}
		}
	}
	b.mu.Unlock()

	for _, v := range stale {
		b.drop(v)
	}

	if found < 0 {
		return item, false
	}

	b.read.Add(1)
	return item, true
}

// Drain releases every item still buffered. The buffer stays usable.
func (b *Buffer[T]) Drain() {
	var left []T

	b.mu.Lock()
	for i := range b.slots {
		if b.slots[i].ready {
			left = append(left, b.slots[i].item.Value)
		}
		b.slots[i] = slot[T]{}
	}
	b.mu.Unlock()

	if b.release != nil {
		for _, v := range left {
			b.release(v)
		}
	}
}

func (b *Buffer[T]) Stats() Stats {
	return Stats{
		Written: b.written.Load(),
		Read:    b.read.Load(),
		Dropped: b.dropped.Load(),
	}
}

func (b *Buffer[T]) drop(v T) {
	b.dropped.Add(1)
	if b.release != nil {
		b.release(v)
	}
}
