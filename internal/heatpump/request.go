package heatpump

import (
	"log"
	"math"
	"time"
)

// Query names a request in the device's dispatch table.
type Query string

const (
	QueryInfo                 Query = "get_info"
	QueryGetState             Query = "get_state"
	QuerySetState             Query = "set_state"
	QueryGetRoomTemperature   Query = "get_room_temperature"
	QueryGetTargetTemperature Query = "get_target_temperature"
	QuerySetTargetTemperature Query = "set_target_temperature"
	QueryGetMode              Query = "get_mode"
	QuerySetMode              Query = "set_mode"
)

// Status is the outcome of a request.
type Status string

const (
	StatusOK           Status = "ok"
	StatusTooSmall     Status = "too_small"     // setter without a value
	StatusInvalidQuery Status = "invalid_query" // unknown query
	StatusInvalidValue Status = "invalid_value" // setter value out of range for the field
)

// Request is one incoming query. Value is required by setters.
type Request struct {
	ID    string `json:"id,omitempty"`
	Query Query  `json:"query"`
	Value *int64 `json:"value,omitempty"`
}

// Response answers a Request.
type Response struct {
	ID     string `json:"id,omitempty"`
	Query  Query  `json:"query"`
	Status Status `json:"status"`
	Value  *int64 `json:"value,omitempty"`
	Info   *Info  `json:"info,omitempty"`
}

// EventType identifies a device state change.
type EventType string

const (
	EventState             EventType = "STATE"
	EventMode              EventType = "MODE"
	EventTargetTemperature EventType = "TARGET_TEMPERATURE"
	EventRoomTemperature   EventType = "ROOM_TEMPERATURE"
)

// Event is a device state change to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Device    Snapshot
}

// Handle runs req against the dispatch table. Setters return an Event
// describing the change; getters and failed requests return nil.
func (d *Device) Handle(req Request, now time.Time) (Response, *Event) {
	resp := Response{ID: req.ID, Query: req.Query, Status: StatusOK}

	var (
		snap    Snapshot
		changed EventType
	)
	switch req.Query {
	case QueryInfo:
		info := d.Snapshot().Info
		resp.Info = &info
		return resp, nil

	case QueryGetState:
		resp.Value = int64Ptr(int64(d.Snapshot().State))
		return resp, nil

	case QueryGetRoomTemperature:
		resp.Value = int64Ptr(int64(d.Snapshot().RoomTemperature))
		return resp, nil

	case QueryGetTargetTemperature:
		resp.Value = int64Ptr(int64(d.Snapshot().TargetTemperature))
		return resp, nil

	case QueryGetMode:
		resp.Value = int64Ptr(int64(d.Snapshot().Mode))
		return resp, nil

	case QuerySetState:
		if req.Value == nil {
			resp.Status = StatusTooSmall
			return resp, nil
		}
		state := StateOff
		if *req.Value != 0 {
			state = StateOn
		}
		snap = d.setState(state)
		resp.Value = int64Ptr(int64(snap.State))
		changed = EventState

	case QuerySetTargetTemperature:
		if req.Value == nil {
			resp.Status = StatusTooSmall
			return resp, nil
		}
		if *req.Value < math.MinInt32 || *req.Value > math.MaxInt32 {
			resp.Status = StatusInvalidValue
			return resp, nil
		}
		snap = d.setTargetTemperature(int32(*req.Value))
		resp.Value = int64Ptr(int64(snap.TargetTemperature))
		changed = EventTargetTemperature

	case QuerySetMode:
		if req.Value == nil {
			resp.Status = StatusTooSmall
			return resp, nil
		}
		if *req.Value < 0 || *req.Value > math.MaxUint32 {
			resp.Status = StatusInvalidValue
			return resp, nil
		}
		snap = d.setMode(uint32(*req.Value))
		resp.Value = int64Ptr(int64(snap.Mode))
		changed = EventMode

	default:
		log.Printf("heatpump: unhandled query %q", req.Query)
		resp.Status = StatusInvalidQuery
		return resp, nil
	}

	return resp, &Event{Timestamp: now, Type: changed, Device: snap}
}

func int64Ptr(v int64) *int64 {
	return &v
}
