package models

import (
	"time"
)

// ConnectionStatus is the state of the serial connection
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusError        ConnectionStatus = "ERROR"
)

// Supported serial speeds
const (
	BaudRate9600   = 9600
	BaudRate115200 = 115200
)

// Calibration multiplier bounds
const (
	MinMultiplier     = 0.8
	MaxMultiplier     = 1.2
	DefaultMultiplier = 1.0
)

// RawRecord is one decoded JSON line as sent by the firmware
type RawRecord map[string]any

// Sample is a single normalized, calibrated reading
type Sample struct {
	Timestamp time.Time `json:"timestamp" doc:"Receive time of the reading"`
	RMS       float64   `json:"rms" doc:"Calibrated RMS voltage in volts"`
	VPeak     float64   `json:"vpeak" doc:"Calibrated peak voltage in volts"`
	Freq      float64   `json:"freq" doc:"Line frequency in Hz"`
	Current   float64   `json:"current" doc:"RMS current in amps"`
	Power     float64   `json:"power" doc:"Real power in watts (unity power factor)"`
}

// Stats is the live snapshot of the most recent sample
type Stats struct {
	RMS         float64   `json:"rms" doc:"Calibrated RMS voltage in volts"`
	VPeak       float64   `json:"vpeak" doc:"Calibrated peak voltage in volts"`
	PeakToPeak  float64   `json:"peak_to_peak" doc:"Peak-to-peak voltage, twice the peak"`
	Freq        float64   `json:"freq" doc:"Line frequency in Hz"`
	Current     float64   `json:"current" doc:"RMS current in amps"`
	PeakCurrent float64   `json:"peak_current" doc:"Peak current in amps, assuming a sinusoid"`
	Power       float64   `json:"power" doc:"Real power in watts"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" doc:"Timestamp of the sample behind this snapshot"`
}

// Calibration holds the user-adjustable ingestion settings
type Calibration struct {
	Multiplier float64 `json:"multiplier" minimum:"0.8" maximum:"1.2" doc:"Voltage calibration factor"`
	BaudRate   int     `json:"baud_rate" enum:"9600,115200" doc:"Serial speed used on the next connect"`
}

// DefaultCalibration returns the settings a fresh session starts with
func DefaultCalibration() Calibration {
	return Calibration{
		Multiplier: DefaultMultiplier,
		BaudRate:   BaudRate9600,
	}
}

// Event is a live update fanned out to stream subscribers
type Event struct {
	Type   string           `json:"type"`
	Sample *Sample          `json:"sample,omitempty"`
	Stats  *Stats           `json:"stats,omitempty"`
	Status ConnectionStatus `json:"status,omitempty"`
}

// Event types
const (
	EventSample = "sample"
	EventStatus = "status"
)

// SessionSummary describes one recorded serial session
type SessionSummary struct {
	SessionID string    `json:"session_id" doc:"Session identifier"`
	Readings  int       `json:"readings" doc:"Number of recorded samples"`
	StartedAt time.Time `json:"started_at" doc:"Timestamp of the first sample"`
	EndedAt   time.Time `json:"ended_at" doc:"Timestamp of the last sample"`
}

// ArchiveDocument is the JSON object written for a history archive
type ArchiveDocument struct {
	SessionID   string      `json:"session_id"`
	CreatedAt   time.Time   `json:"created_at"`
	Calibration Calibration `json:"calibration"`
	Samples     []Sample    `json:"samples"`
}

// Archive describes an uploaded history archive
type Archive struct {
	Key       string `json:"key" doc:"Object key of the archive"`
	URL       string `json:"url" doc:"Pre-signed download URL"`
	Samples   int    `json:"samples" doc:"Number of samples archived"`
	ExpiresIn int    `json:"expires_in" doc:"URL expiration time in seconds"`
}
