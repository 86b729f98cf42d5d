package advisor

import "sync"

// RollingWindow is a fixed-capacity FIFO of recent RSSI readings.
// When full, Add evicts the oldest value.
type RollingWindow struct {
	mu   sync.Mutex
	buf  []float64
	head int // index of the oldest value
	n    int
}

// NewRollingWindow creates a window holding up to capacity readings.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &RollingWindow{buf: make([]float64, capacity)}
}

// Add appends a reading.
func (w *RollingWindow) Add(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Values returns the readings oldest first.
func (w *RollingWindow) Values() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of readings held.
func (w *RollingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Cap returns the window capacity.
func (w *RollingWindow) Cap() int {
	return len(w.buf)
}
