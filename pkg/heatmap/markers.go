package heatmap

import (
	"fmt"
	"sync"
)

// RouterMarker is a user-placed reference point.
type RouterMarker struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Active bool    `json:"active"`
}

// MarkerSet is a snapshot of every marker drawn on the map.
type MarkerSet struct {
	Routers    [2]RouterMarker `json:"routers"`
	Suggestion RouterMarker    `json:"suggestion"`
}

// Markers holds the router markers and the placement suggestion.
// They change only on explicit user action.
type Markers struct {
	mu  sync.RWMutex
	set MarkerSet
}

// NewMarkers returns an empty marker set.
func NewMarkers() *Markers {
	return &Markers{}
}

// Place sets router n (1 or 2) at (x, y).
func (m *Markers) Place(n int, x, y float64) error {
	if n < 1 || n > len(m.set.Routers) {
		return fmt.Errorf("heatmap: router marker %d out of range 1..%d", n, len(m.set.Routers))
	}
	m.mu.Lock()
	m.set.Routers[n-1] = RouterMarker{X: x, Y: y, Active: true}
	m.mu.Unlock()
	return nil
}

// Suggest places the recommended router position.
func (m *Markers) Suggest(x, y float64) {
	m.mu.Lock()
	m.set.Suggestion = RouterMarker{X: x, Y: y, Active: true}
	m.mu.Unlock()
}

// Clear removes every marker.
func (m *Markers) Clear() {
	m.mu.Lock()
	m.set = MarkerSet{}
	m.mu.Unlock()
}

// Snapshot returns a copy of the current markers.
func (m *Markers) Snapshot() MarkerSet {
	if m == nil {
		return MarkerSet{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set
}
