// README: Samsara telemetry webhook; runs stop/move detection for each sample.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/telemetry"
	"driverbuddy/internal/types"
)

type Ingester interface {
	Ingest(ctx context.Context, cmd telemetry.IngestCommand) (telemetry.Result, error)
}

type TelemetryHandler struct {
	ingest        Ingester
	publicBaseURL string
}

func NewTelemetryHandler(ingest Ingester, publicBaseURL string) *TelemetryHandler {
	return &TelemetryHandler{ingest: ingest, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

type samsaraReq struct {
	VehicleID string           `json:"vehicleId"`
	DriverID  string           `json:"driverId"`
	Timestamp string           `json:"timestamp"`
	Latitude  *decimal.Decimal `json:"latitude"`
	Longitude *decimal.Decimal `json:"longitude"`
	Speed     *float64         `json:"speed"`
	Heading   *float64         `json:"heading"`
	Metadata  map[string]any   `json:"metadata"`
}

type samsaraResp struct {
	Status       string           `json:"status"`
	EventCreated bool             `json:"event_created"`
	EventID      *types.ID        `json:"event_id"`
	Transition   event.Transition `json:"transition"`
}

func (h *TelemetryHandler) Samsara(c *gin.Context) {
	var req samsaraReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VehicleID == "" || req.Timestamp == "" || req.Latitude == nil || req.Longitude == nil || req.Speed == nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	if *req.Speed < 0 {
		writeError(c, http.StatusBadRequest, "speed must be non-negative")
		return
	}
	ts, err := parseTimestamp(req.Timestamp)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid timestamp")
		return
	}

	res, err := h.ingest.Ingest(c.Request.Context(), telemetry.IngestCommand{
		Sample: telemetry.Sample{
			VehicleID: req.VehicleID,
			DriverID:  types.ID(req.DriverID),
			Timestamp: ts,
			Position:  types.NewPoint(*req.Latitude, *req.Longitude),
			Speed:     *req.Speed,
			Heading:   req.Heading,
			Metadata:  req.Metadata,
		},
		StatusCallbackURL: StatusCallbackURL(h.publicBaseURL, c.Request),
	})
	if err != nil {
		writeTelemetryError(c, err)
		return
	}

	resp := samsaraResp{Status: "ok", EventCreated: res.EventCreated, Transition: res.Transition}
	if res.Transition == event.TransitionStopStarted && res.EventID != "" {
		resp.EventID = &res.EventID
	}
	writeJSON(c, http.StatusOK, resp)
}

// naiveTimestamp is ISO-8601 without an offset, as sent by clients that format UTC
// times without a zone.
const naiveTimestamp = "2006-01-02T15:04:05.999999999"

// parseTimestamp accepts RFC 3339 and offset-less ISO-8601, the latter read as UTC.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(naiveTimestamp, v, time.UTC)
}

// StatusCallbackURL is where the SMS provider reports delivery status. Without a
// configured public base URL it is derived from the incoming request.
func StatusCallbackURL(publicBaseURL string, r *http.Request) string {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" && r != nil {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
			scheme = p
		}
		base = scheme + "://" + r.Host
	}
	if base == "" {
		return ""
	}
	return base + StatusCallbackPath
}

const StatusCallbackPath = "/webhook/twilio/status"
