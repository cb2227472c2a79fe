package telemetry

import (
	"sync"

	"github.com/RMahshie/voltsense/pkg/models"
)

// DefaultHistorySize is the number of samples kept for the trend chart
const DefaultHistorySize = 100

// History is a bounded, insertion-ordered log of samples. Once full, the
// oldest sample is evicted on every append.
type History struct {
	mu      sync.RWMutex
	samples []models.Sample
	limit   int
}

// NewHistory creates a history holding at most limit samples
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{
		samples: make([]models.Sample, 0, limit),
		limit:   limit,
	}
}

// Append adds a sample, evicting the oldest when the bound is reached
func (h *History) Append(s models.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == h.limit {
		copy(h.samples, h.samples[1:])
		h.samples[len(h.samples)-1] = s
		return
	}
	h.samples = append(h.samples, s)
}

// Snapshot returns a copy of the samples, oldest first
func (h *History) Snapshot() []models.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

func (h *History) Cap() int {
	return h.limit
}
