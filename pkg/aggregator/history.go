package aggregator

import (
	"sync"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// DefaultChartCapacity is the number of points kept for charting
const DefaultChartCapacity = 20

// ChartHistory is a bounded, oldest-first buffer of chart points shared
// by every session. Appends evict the oldest point once full.
type ChartHistory struct {
	mu       sync.Mutex
	capacity int
	points   []models.ChartPoint
}

// NewChartHistory creates an empty history. Capacities below one are
// raised to one.
func NewChartHistory(capacity int) *ChartHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &ChartHistory{
		capacity: capacity,
		points:   make([]models.ChartPoint, 0, capacity),
	}
}

// Append adds a point and returns a copy of the resulting history, so a
// caller sees its own point together with the window it landed in.
func (h *ChartHistory) Append(p models.ChartPoint) []models.ChartPoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.points) >= h.capacity {
		copy(h.points, h.points[1:])
		h.points = h.points[:len(h.points)-1]
	}
	h.points = append(h.points, p)

	return h.snapshotLocked()
}

// Snapshot returns a copy of the history, oldest first
func (h *ChartHistory) Snapshot() []models.ChartPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Len returns the number of stored points
func (h *ChartHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}

// Capacity returns the maximum number of stored points
func (h *ChartHistory) Capacity() int {
	return h.capacity
}

func (h *ChartHistory) snapshotLocked() []models.ChartPoint {
	out := make([]models.ChartPoint, len(h.points))
	copy(out, h.points)
	return out
}
