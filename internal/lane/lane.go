// Package lane fans work out to per-key serial lanes. Items sharing a
// key are processed one at a time in submission order; distinct keys
// run concurrently. Lanes are created on first use and reaped after
// sitting idle.
package lane

import (
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/kavik/groupwarden-go/pkg/errors"
)

type Group[T any] struct {
	mu     sync.Mutex
	lanes  map[int64]*laneState[T]
	closed bool

	process func(key int64, item T)
	buffer  int
	idle    time.Duration
	quit    chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

type laneState[T any] struct {
	ch chan T
	// pending counts items submitted but not yet processed. A lane is
	// reaped only at zero, so no item can strand in a dead channel.
	pending int
}

// NewGroup builds a lane group. process runs on a lane's goroutine,
// one item at a time per key.
func NewGroup[T any](buffer int, idle time.Duration, process func(key int64, item T), logger *zap.Logger) *Group[T] {
	if buffer < 1 {
		buffer = 1
	}
	if idle <= 0 {
		idle = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group[T]{
		lanes:   make(map[int64]*laneState[T]),
		process: process,
		buffer:  buffer,
		idle:    idle,
		quit:    make(chan struct{}),
		logger:  logger,
	}
}

// Submit queues an item onto its key's lane, creating the lane if
// needed. It blocks when the lane's buffer is full and fails once the
// group is closed.
func (g *Group[T]) Submit(key int64, item T) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeServiceUnavailable, "lane group is closed")
	}
	l, ok := g.lanes[key]
	if !ok {
		l = &laneState[T]{ch: make(chan T, g.buffer)}
		g.lanes[key] = l
		g.wg.Add(1)
		go g.run(key, l)
	}
	l.pending++
	g.mu.Unlock()

	l.ch <- item
	return nil
}

// Close stops accepting work, drains every lane, and waits for the
// runners to finish.
func (g *Group[T]) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	close(g.quit)
	g.wg.Wait()
}

// Len reports the number of live lanes.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lanes)
}

// Pending reports items submitted but not yet processed across all
// lanes.
func (g *Group[T]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, l := range g.lanes {
		total += l.pending
	}
	return total
}

func (g *Group[T]) run(key int64, l *laneState[T]) {
	defer g.wg.Done()

	timer := time.NewTimer(g.idle)
	defer timer.Stop()

	for {
		select {
		case item := <-l.ch:
			g.process(key, item)
			g.mu.Lock()
			l.pending--
			g.mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(g.idle)

		case <-timer.C:
			g.mu.Lock()
			if l.pending == 0 {
				delete(g.lanes, key)
				g.mu.Unlock()
				return
			}
			g.mu.Unlock()
			timer.Reset(g.idle)

		case <-g.quit:
			g.drain(key, l)
			return
		}
	}
}

// drain finishes the remaining items after Close. It relies on
// pending being incremented before the channel send, so a submitter
// caught mid-flight is always waited for.
func (g *Group[T]) drain(key int64, l *laneState[T]) {
	for {
		g.mu.Lock()
		if l.pending == 0 {
			delete(g.lanes, key)
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		item := <-l.ch
		g.process(key, item)
		g.mu.Lock()
		l.pending--
		g.mu.Unlock()
	}
}
