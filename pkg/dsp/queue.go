package dsp

import (
	"slices"
	"sync"
	"sync/atomic"
)

// queue is a bounded chunk buffer. When full it drops the oldest chunk that
// carries no wake word, so a detection is never lost to a burst of plain audio.
type queue struct {
	ch       chan Chunk
	mu       sync.Mutex // serializes producers
	overruns atomic.Int64
}

func newQueue(size int) *queue {
	return &queue{ch: make(chan Chunk, size)}
}

func (q *queue) push(c Chunk) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- c:
		return
	default:
	}

	// Full. The consumer may still take chunks while they are held here.
	held := q.drain()
	if len(held) < cap(q.ch) {
		q.refill(append(held, c))
		return
	}

	q.overruns.Add(1)
	victim := slices.IndexFunc(held, func(old Chunk) bool { return old.Hotword < 1 })
	switch {
	case victim >= 0:
		held = append(slices.Delete(held, victim, victim+1), c)
	case c.Hotword >= 1:
		held = append(held[1:], c)
	default:
		// Every buffered chunk is a detection; c is plain audio and goes.
	}
	q.refill(held)
}

func (q *queue) drain() []Chunk {
	held := make([]Chunk, 0, cap(q.ch))
	for {
		select {
		case old := <-q.ch:
			held = append(held, old)
		default:
			return held
		}
	}
}

// refill never blocks: producers are serialized and held fits the buffer.
func (q *queue) refill(held []Chunk) {
	for _, c := range held {
		q.ch <- c
	}
}
