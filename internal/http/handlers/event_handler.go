// README: Read-only event listing and detail endpoints.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/types"
)

type EventReader interface {
	Get(ctx context.Context, id types.ID) (*event.Event, error)
	List(ctx context.Context, f event.Filter) (event.Page, error)
}

type MessageLister interface {
	ListByEvent(ctx context.Context, eventID types.ID) ([]message.Message, error)
}

type EventHandler struct {
	events   EventReader
	messages MessageLister
}

func NewEventHandler(events EventReader, messages MessageLister) *EventHandler {
	return &EventHandler{events: events, messages: messages}
}

type eventListResp struct {
	Events   []eventResponse `json:"events"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type eventDetailResp struct {
	eventResponse
	Messages []messageResponse `json:"messages"`
}

func (h *EventHandler) List(c *gin.Context) {
	page, ok := queryInt(c, "page", 1, 1, 0)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size", event.DefaultPageSize, 1, event.MaxPageSize)
	if !ok {
		return
	}
	res, err := h.events.List(c.Request.Context(), event.Filter{
		VehicleID: c.Query("vehicle_id"),
		DriverID:  types.ID(c.Query("driver_id")),
		Type:      event.Type(c.Query("event_type")),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		writeEventError(c, err)
		return
	}
	out := eventListResp{
		Events:   make([]eventResponse, 0, len(res.Events)),
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
	}
	for _, e := range res.Events {
		out.Events = append(out.Events, toEventResponse(e))
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *EventHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing event id")
		return
	}
	e, err := h.events.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeEventError(c, err)
		return
	}
	msgs, err := h.messages.ListByEvent(c.Request.Context(), e.ID)
	if err != nil {
		writeEventError(c, err)
		return
	}
	out := eventDetailResp{eventResponse: toEventResponse(*e), Messages: make([]messageResponse, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageResponse(m))
	}
	writeJSON(c, http.StatusOK, out)
}

// queryInt parses an optional integer query parameter; hi 0 means unbounded.
func queryInt(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi > 0 && v > hi) {
		writeError(c, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return v, true
}
