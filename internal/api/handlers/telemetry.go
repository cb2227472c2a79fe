package handlers

import (
	"context"
	"errors"

	"github.com/RMahshie/voltsense/internal/repository"
	"github.com/RMahshie/voltsense/internal/telemetry"
	"github.com/RMahshie/voltsense/internal/transport"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TelemetryHandler handles connection, calibration and reading requests
type TelemetryHandler struct {
	pipeline telemetry.Pipeline
	ports    transport.Lister
	readings repository.ReadingRepository
}

// NewTelemetryHandler creates a new telemetry handler. ports and readings
// may be nil when the host has no serial support or no database.
func NewTelemetryHandler(pipeline telemetry.Pipeline, ports transport.Lister, readings repository.ReadingRepository) *TelemetryHandler {
	return &TelemetryHandler{
		pipeline: pipeline,
		ports:    ports,
		readings: readings,
	}
}

// ListPorts returns the attached serial ports
func (h *TelemetryHandler) ListPorts(ctx context.Context, req *struct{}) (*models.ListPortsResponse, error) {
	if h.ports == nil {
		return nil, huma.Error503ServiceUnavailable("Serial transport is not available on this host")
	}

	ports, err := h.ports.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list serial ports", err)
	}

	resp := &models.ListPortsResponse{}
	resp.Body.Ports = ports
	if resp.Body.Ports == nil {
		resp.Body.Ports = []string{}
	}
	return resp, nil
}

// GetConnection returns the connection status
func (h *TelemetryHandler) GetConnection(ctx context.Context, req *struct{}) (*models.ConnectionResponse, error) {
	return h.connectionResponse(), nil
}

// Connect opens the serial connection
func (h *TelemetryHandler) Connect(ctx context.Context, req *models.ConnectRequest) (*models.ConnectionResponse, error) {
	log.Info().Str("port", req.Body.Port).Msg("Connect request received")

	err := h.pipeline.Connect(ctx, req.Body.Port)
	switch {
	case err == nil:
		return h.connectionResponse(), nil
	case errors.Is(err, telemetry.ErrNotDisconnected):
		return nil, huma.Error409Conflict("Connection is already active", err)
	case errors.Is(err, telemetry.ErrTransportUnavailable):
		return nil, huma.Error503ServiceUnavailable("Serial transport is not available on this host", err)
	case errors.Is(err, telemetry.ErrConnectionFailed):
		return nil, huma.Error502BadGateway("Failed to open serial port", err)
	default:
		return nil, huma.Error500InternalServerError("Failed to connect", err)
	}
}

// Disconnect stops the read loop. The status settles to DISCONNECTED once
// the port is closed.
func (h *TelemetryHandler) Disconnect(ctx context.Context, req *struct{}) (*models.ConnectionResponse, error) {
	log.Info().Msg("Disconnect request received")
	h.pipeline.Disconnect()
	return h.connectionResponse(), nil
}

// GetCalibration returns the calibration settings
func (h *TelemetryHandler) GetCalibration(ctx context.Context, req *struct{}) (*models.CalibrationResponse, error) {
	return &models.CalibrationResponse{Body: h.pipeline.Calibration()}, nil
}

// UpdateCalibration replaces the calibration settings
func (h *TelemetryHandler) UpdateCalibration(ctx context.Context, req *models.UpdateCalibrationRequest) (*models.CalibrationResponse, error) {
	if err := h.pipeline.SetCalibration(req.Body); err != nil {
		return nil, calibrationError(err)
	}
	return &models.CalibrationResponse{Body: h.pipeline.Calibration()}, nil
}

// PatchCalibration changes only the settings present in the body. The
// multiplier is applied before the baud rate.
func (h *TelemetryHandler) PatchCalibration(ctx context.Context, req *models.PatchCalibrationRequest) (*models.CalibrationResponse, error) {
	if req.Body.Multiplier != nil {
		if err := h.pipeline.SetMultiplier(*req.Body.Multiplier); err != nil {
			return nil, calibrationError(err)
		}
	}
	if req.Body.BaudRate != nil {
		if err := h.pipeline.SetBaudRate(*req.Body.BaudRate); err != nil {
			return nil, calibrationError(err)
		}
	}
	return &models.CalibrationResponse{Body: h.pipeline.Calibration()}, nil
}

// GetStats returns the live snapshot
func (h *TelemetryHandler) GetStats(ctx context.Context, req *struct{}) (*models.StatsResponse, error) {
	return &models.StatsResponse{Body: h.pipeline.Stats()}, nil
}

// GetHistory returns the rolling history
func (h *TelemetryHandler) GetHistory(ctx context.Context, req *struct{}) (*models.HistoryResponse, error) {
	resp := &models.HistoryResponse{}
	resp.Body.Samples = h.pipeline.History()
	resp.Body.Capacity = h.pipeline.HistoryCapacity()
	return resp, nil
}

// ListSessions returns recorded sessions
func (h *TelemetryHandler) ListSessions(ctx context.Context, req *models.ListSessionsRequest) (*models.ListSessionsResponse, error) {
	if h.readings == nil {
		return nil, huma.Error503ServiceUnavailable("Reading persistence is not configured")
	}

	sessions, err := h.readings.ListSessions(ctx, req.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list sessions", err)
	}

	resp := &models.ListSessionsResponse{}
	resp.Body.Sessions = sessions
	return resp, nil
}

// GetSessionReadings returns recorded samples of one session
func (h *TelemetryHandler) GetSessionReadings(ctx context.Context, req *models.GetSessionReadingsRequest) (*models.GetSessionReadingsResponse, error) {
	if h.readings == nil {
		return nil, huma.Error503ServiceUnavailable("Reading persistence is not configured")
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, huma.Error400BadRequest("Invalid session ID", err)
	}

	samples, err := h.readings.ListReadings(ctx, req.ID, req.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get readings", err)
	}

	resp := &models.GetSessionReadingsResponse{}
	resp.Body.SessionID = req.ID
	resp.Body.Samples = samples
	return resp, nil
}

// Stream sends live status and sample events until the client goes away
func (h *TelemetryHandler) Stream(ctx context.Context, req *struct{}, send sse.Sender) {
	events, unsubscribe := h.pipeline.Subscribe()
	defer unsubscribe()

	if err := send.Data(models.StatusEvent{Status: h.pipeline.Status()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sendEvent(send, ev); err != nil {
				log.Debug().Err(err).Msg("Stream client went away")
				return
			}
		}
	}
}

func sendEvent(send sse.Sender, ev models.Event) error {
	switch ev.Type {
	case models.EventStatus:
		return send.Data(models.StatusEvent{Status: ev.Status})
	case models.EventSample:
		if ev.Sample == nil || ev.Stats == nil {
			return nil
		}
		return send.Data(models.SampleEvent{Sample: *ev.Sample, Stats: *ev.Stats})
	default:
		return nil
	}
}

func calibrationError(err error) error {
	if errors.Is(err, telemetry.ErrMultiplierOutOfRange) || errors.Is(err, telemetry.ErrUnsupportedBaudRate) {
		return huma.Error422UnprocessableEntity(err.Error(), err)
	}
	return huma.Error500InternalServerError("Failed to update calibration", err)
}

func (h *TelemetryHandler) connectionResponse() *models.ConnectionResponse {
	return &models.ConnectionResponse{
		Body: models.ConnectionResponseBody{
			Status:    h.pipeline.Status(),
			SessionID: h.pipeline.SessionID(),
		},
	}
}
