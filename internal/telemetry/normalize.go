package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/RMahshie/voltsense/pkg/models"
)

// SineCrestFactor converts RMS to peak for a sinusoid
const SineCrestFactor = 1.4142

// peakCurrentFactor matches the load diagnostics readout
const peakCurrentFactor = 1.414

// Firmware variants name the same quantity differently. Keys are tried in
// order and the first one holding a number wins.
var (
	rmsKeys     = []string{"v", "voltage", "rms", "rms_actual"}
	peakKeys    = []string{"vp", "vpeak"}
	freqKeys    = []string{"f", "freq"}
	currentKeys = []string{"i", "current"}
)

// Normalize maps a raw record to a calibrated sample. The multiplier scales
// voltage only; current and frequency pass through. The caller assigns the
// timestamp.
func Normalize(raw models.RawRecord, multiplier float64) (models.Sample, error) {
	rawRMS, hasRMS := lookup(raw, rmsKeys)
	rawPeak, hasPeak := lookup(raw, peakKeys)
	freq, hasFreq := lookup(raw, freqKeys)
	current, hasCurrent := lookup(raw, currentKeys)

	if !hasRMS && !hasPeak && !hasFreq && !hasCurrent {
		return models.Sample{}, ErrNoUsableField
	}

	if !hasPeak {
		rawPeak = rawRMS * SineCrestFactor
	}

	rms := rawRMS * multiplier
	return models.Sample{
		RMS:     rms,
		VPeak:   rawPeak * multiplier,
		Freq:    freq,
		Current: current,
		Power:   rms * current,
	}, nil
}

// StatsFor derives the live snapshot from a sample
func StatsFor(s models.Sample) models.Stats {
	return models.Stats{
		RMS:         s.RMS,
		VPeak:       s.VPeak,
		PeakToPeak:  2 * s.VPeak,
		Freq:        s.Freq,
		Current:     s.Current,
		PeakCurrent: s.Current * peakCurrentFactor,
		Power:       s.Power,
		UpdatedAt:   s.Timestamp,
	}
}

func lookup(raw models.RawRecord, keys []string) (float64, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if n, ok := toFloat(value); ok {
			return n, true
		}
	}
	return 0, false
}

// toFloat accepts finite JSON numbers and numeric strings; null, NaN,
// infinities and anything else count as absent
func toFloat(value any) (float64, bool) {
	var (
		f  float64
		ok bool
	)
	switch v := value.(type) {
	case float64:
		f, ok = v, true
	case json.Number:
		n, err := v.Float64()
		f, ok = n, err == nil
	case int:
		f, ok = float64(v), true
	case int64:
		f, ok = float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		f, ok = n, err == nil
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
