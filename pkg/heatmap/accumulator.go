// Package heatmap accumulates (position, signal) samples along the walked
// path and renders them into a dense color grid.
package heatmap

import "sync"

// DefaultCapacity is the recommended PathLog size.
const DefaultCapacity = 10000

// SignalPoint is one recorded sample. Immutable once appended.
type SignalPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	SignalDBm float64 `json:"signal"`
}

// AppendFunc is notified after a point has been stored.
type AppendFunc func(p SignalPoint)

// Accumulator is the bounded, append-only path log.
//
// Once full it stops recording: the oldest data is kept and new points are
// rejected. A single goroutine appends; any number may read.
type Accumulator struct {
	mu       sync.RWMutex
	points   []SignalPoint
	capacity int
	hooks    []AppendFunc
}

// NewAccumulator creates an empty log holding at most capacity points.
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Accumulator{
		points:   make([]SignalPoint, 0, capacity),
		capacity: capacity,
	}
}

// OnAppend registers a hook called (outside the lock) for every stored point.
// Register hooks before the first Append.
func (a *Accumulator) OnAppend(fn AppendFunc) {
	a.mu.Lock()
	a.hooks = append(a.hooks, fn)
	a.mu.Unlock()
}

// Append stores a point. It returns false, without error, when the log is full.
func (a *Accumulator) Append(x, y, signal float64) bool {
	p := SignalPoint{X: x, Y: y, SignalDBm: signal}

	a.mu.Lock()
	if len(a.points) >= a.capacity {
		a.mu.Unlock()
		return false
	}
	a.points = append(a.points, p)
	hooks := a.hooks
	a.mu.Unlock()

	for _, fn := range hooks {
		fn(p)
	}
	return true
}

// Count returns the number of stored points.
func (a *Accumulator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.points)
}

// Capacity returns the maximum number of points.
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Full reports whether further appends will be rejected.
func (a *Accumulator) Full() bool {
	return a.Count() >= a.capacity
}

// Points returns a copy of the log in insertion order.
func (a *Accumulator) Points() []SignalPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SignalPoint, len(a.points))
	copy(out, a.points)
	return out
}

// view returns the live backing slice. Appends never modify existing
// elements, so the returned prefix is safe to read without the lock.
func (a *Accumulator) view() []SignalPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.points[:len(a.points):len(a.points)]
}
