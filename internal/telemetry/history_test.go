package telemetry

import (
	"testing"

	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleN(n int) models.Sample {
	return models.Sample{RMS: float64(n)}
}

func TestHistoryBound(t *testing.T) {
	for _, bound := range []int{1, 50, 100} {
		h := NewHistory(bound)
		for total := 1; total <= bound*2+3; total++ {
			h.Append(sampleN(total))
			require.Equal(t, min(total, bound), h.Len())
		}
	}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	const bound = 50
	h := NewHistory(bound)
	for i := 1; i <= bound+1; i++ {
		h.Append(sampleN(i))
	}

	got := h.Snapshot()
	require.Len(t, got, bound)
	assert.Equal(t, 2.0, got[0].RMS, "first appended sample evicted")
	for i, s := range got {
		assert.Equal(t, float64(i+2), s.RMS)
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	h := NewHistory(3)
	h.Append(sampleN(1))

	snap := h.Snapshot()
	snap[0].RMS = 999

	assert.Equal(t, 1.0, h.Snapshot()[0].RMS)
}

func TestHistoryDefaultSize(t *testing.T) {
	assert.Equal(t, DefaultHistorySize, NewHistory(0).Cap())
	assert.Equal(t, 50, NewHistory(50).Cap())
}
