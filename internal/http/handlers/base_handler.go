// README: Base handler utilities (JSON helpers, error mapping, response shapes).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/modules/telemetry"
	"driverbuddy/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// webhookResponse is the soft reply given to providers; a 200 with status
// "error" tells them not to retry.
type webhookResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	MessageID *types.ID `json:"message_id,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeEventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, event.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, event.ErrNotFound):
		writeError(c, http.StatusNotFound, "Event not found")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeTelemetryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, telemetry.ErrBadRequest):
		writeError(c, http.StatusBadRequest, "invalid telemetry sample")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "error processing webhook")
	}
}

type eventResponse struct {
	ID        types.ID       `json:"id"`
	DriverID  *types.ID      `json:"driver_id"`
	VehicleID string         `json:"vehicle_id"`
	EventType event.Type     `json:"event_type"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

func toEventResponse(e event.Event) eventResponse {
	return eventResponse{
		ID:        e.ID,
		DriverID:  e.DriverID,
		VehicleID: e.VehicleID,
		EventType: e.Type,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Latitude:  e.Position.Lat.InexactFloat64(),
		Longitude: e.Position.Lng.InexactFloat64(),
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

type messageResponse struct {
	ID                types.ID          `json:"id"`
	EventID           *types.ID         `json:"event_id"`
	DriverID          *types.ID         `json:"driver_id"`
	Direction         message.Direction `json:"direction"`
	Body              string            `json:"body"`
	ProviderMessageID *string           `json:"provider_message_id"`
	FromPhone         string            `json:"from_phone"`
	ToPhone           string            `json:"to_phone"`
	Status            message.Status    `json:"status"`
	ErrorCode         string            `json:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toMessageResponse(m message.Message) messageResponse {
	out := messageResponse{
		ID:           m.ID,
		EventID:      m.EventID,
		DriverID:     m.DriverID,
		Direction:    m.Direction,
		Body:         m.Body,
		FromPhone:    m.FromPhone,
		ToPhone:      m.ToPhone,
		Status:       m.Status,
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.HasProviderID() {
		sid := m.ProviderMessageID
		out.ProviderMessageID = &sid
	}
	return out
}
