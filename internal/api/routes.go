package api

import (
	"net/http"

	"github.com/RMahshie/voltsense/internal/api/handlers"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
)

// Handlers groups the handlers exposed by the API
type Handlers struct {
	Telemetry *handlers.TelemetryHandler
	Advice    *handlers.AdviceHandler
	Archive   *handlers.ArchiveHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, h Handlers) {
	registerTelemetryRoutes(api, h.Telemetry)
	registerAdviceRoutes(api, h.Advice)
	registerArchiveRoutes(api, h.Archive)
}

func registerTelemetryRoutes(api huma.API, th *handlers.TelemetryHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listPorts",
		Method:      http.MethodGet,
		Path:        "/api/ports",
		Summary:     "List serial ports",
		Description: "Returns the serial ports attached to the host",
		Tags:        []string{"Connection"},
	}, th.ListPorts)

	huma.Register(api, huma.Operation{
		OperationID: "getConnection",
		Method:      http.MethodGet,
		Path:        "/api/connection",
		Summary:     "Get connection status",
		Tags:        []string{"Connection"},
	}, th.GetConnection)

	huma.Register(api, huma.Operation{
		OperationID: "connect",
		Method:      http.MethodPost,
		Path:        "/api/connection",
		Summary:     "Connect to the device",
		Description: "Opens the serial port at the configured baud rate and starts a new session",
		Tags:        []string{"Connection"},
	}, th.Connect)

	huma.Register(api, huma.Operation{
		OperationID: "disconnect",
		Method:      http.MethodDelete,
		Path:        "/api/connection",
		Summary:     "Disconnect from the device",
		Tags:        []string{"Connection"},
	}, th.Disconnect)

	huma.Register(api, huma.Operation{
		OperationID: "getCalibration",
		Method:      http.MethodGet,
		Path:        "/api/calibration",
		Summary:     "Get calibration",
		Tags:        []string{"Calibration"},
	}, th.GetCalibration)

	huma.Register(api, huma.Operation{
		OperationID: "updateCalibration",
		Method:      http.MethodPut,
		Path:        "/api/calibration",
		Summary:     "Update calibration",
		Description: "The multiplier applies to the next record received. The baud rate applies on the next connect.",
		Tags:        []string{"Calibration"},
	}, th.UpdateCalibration)

	huma.Register(api, huma.Operation{
		OperationID: "patchCalibration",
		Method:      http.MethodPatch,
		Path:        "/api/calibration",
		Summary:     "Change calibration",
		Description: "Changes only the settings present in the body",
		Tags:        []string{"Calibration"},
	}, th.PatchCalibration)

	huma.Register(api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Get live readings",
		Tags:        []string{"Readings"},
	}, th.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getHistory",
		Method:      http.MethodGet,
		Path:        "/api/history",
		Summary:     "Get rolling history",
		Tags:        []string{"Readings"},
	}, th.GetHistory)

	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List recorded sessions",
		Tags:        []string{"Readings"},
	}, th.ListSessions)

	huma.Register(api, huma.Operation{
		OperationID: "getSessionReadings",
		Method:      http.MethodGet,
		Path:        "/api/sessions/{id}/readings",
		Summary:     "Get recorded readings",
		Tags:        []string{"Readings"},
	}, th.GetSessionReadings)

	sse.Register(api, huma.Operation{
		OperationID: "streamReadings",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "Stream live readings",
		Description: "Server-sent events for every accepted sample and every status change",
		Tags:        []string{"Readings"},
	}, map[string]any{
		models.EventSample: models.SampleEvent{},
		models.EventStatus: models.StatusEvent{},
	}, th.Stream)
}

func registerAdviceRoutes(api huma.API, ah *handlers.AdviceHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "getConversation",
		Method:      http.MethodGet,
		Path:        "/api/advice",
		Summary:     "Get advisory chat",
		Tags:        []string{"Advice"},
	}, ah.GetConversation)

	huma.Register(api, huma.Operation{
		OperationID: "askQuestion",
		Method:      http.MethodPost,
		Path:        "/api/advice",
		Summary:     "Ask the advisor",
		Description: "Sends the question with the live readings and hardware description",
		Tags:        []string{"Advice"},
	}, ah.AskQuestion)
}

func registerArchiveRoutes(api huma.API, arh *handlers.ArchiveHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "archiveHistory",
		Method:      http.MethodPost,
		Path:        "/api/history/archive",
		Summary:     "Archive history",
		Description: "Uploads the rolling history to object storage and returns a download URL",
		Tags:        []string{"Readings"},
	}, arh.ArchiveHistory)
}
