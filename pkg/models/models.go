package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// ListPortsResponse lists attached serial ports
type ListPortsResponse struct {
	Body struct {
		Ports []string `json:"ports" doc:"Serial port names"`
	}
}

// ConnectionResponseBody describes the connection state
type ConnectionResponseBody struct {
	Status    ConnectionStatus `json:"status" enum:"DISCONNECTED,CONNECTING,CONNECTED,ERROR" doc:"Connection status"`
	SessionID string           `json:"session_id,omitempty" doc:"Current or most recent session"`
}

// ConnectionResponse represents the connection state
type ConnectionResponse struct {
	Body ConnectionResponseBody
}

// ConnectRequest represents a request to open the serial connection
type ConnectRequest struct {
	Body struct {
		Port string `json:"port,omitempty" maxLength:"256" doc:"Serial port name; empty selects the first attached port"`
	}
}

// CalibrationResponse returns the calibration settings
type CalibrationResponse struct {
	Body Calibration
}

// UpdateCalibrationRequest replaces the calibration settings
type UpdateCalibrationRequest struct {
	Body Calibration
}

// PatchCalibrationRequest changes one or both calibration settings
type PatchCalibrationRequest struct {
	Body struct {
		Multiplier *float64 `json:"multiplier,omitempty" minimum:"0.8" maximum:"1.2" doc:"Voltage calibration factor"`
		BaudRate   *int     `json:"baud_rate,omitempty" enum:"9600,115200" doc:"Serial speed used on the next connect"`
	}
}

// StatsResponse returns the live snapshot
type StatsResponse struct {
	Body Stats
}

// HistoryResponse returns the rolling history
type HistoryResponse struct {
	Body struct {
		Capacity int      `json:"capacity" doc:"Maximum number of samples kept"`
		Samples  []Sample `json:"samples" doc:"Samples, oldest first"`
	}
}

// ListSessionsRequest pages recorded sessions
type ListSessionsRequest struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"200" doc:"Maximum sessions to return"`
}

// ListSessionsResponse lists recorded sessions
type ListSessionsResponse struct {
	Body struct {
		Sessions []*SessionSummary `json:"sessions"`
	}
}

// GetSessionReadingsRequest fetches recorded samples of a session
type GetSessionReadingsRequest struct {
	ID    string `path:"id" doc:"Session ID"`
	Limit int    `query:"limit" default:"500" minimum:"1" maximum:"10000" doc:"Maximum readings to return"`
}

// GetSessionReadingsResponse returns recorded samples
type GetSessionReadingsResponse struct {
	Body struct {
		SessionID string    `json:"session_id"`
		Samples   []*Sample `json:"samples"`
	}
}

// SampleEvent is streamed for every accepted sample
type SampleEvent struct {
	Sample Sample `json:"sample"`
	Stats  Stats  `json:"stats"`
}

// StatusEvent is streamed on every connection status change
type StatusEvent struct {
	Status ConnectionStatus `json:"status"`
}

// AskQuestionRequest represents a question for the advisor
type AskQuestionRequest struct {
	Body struct {
		Question string `json:"question" minLength:"1" maxLength:"2000" required:"true" doc:"Question about the readings or circuit"`
	}
}

// AskQuestionResponse represents the advisor's answer
type AskQuestionResponse struct {
	Body ChatMessage
}

// ConversationResponse returns the chat log
type ConversationResponse struct {
	Body struct {
		Messages []ChatMessage `json:"messages"`
	}
}

// ArchiveResponse returns the uploaded archive location
type ArchiveResponse struct {
	Body Archive
}
