// Package mqtt provides MQTT publishing and command subscription with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/heatpump-blink/internal/heatpump"
)

// Topics.
const (
	// TopicEvents carries device state changes.
	TopicEvents = "home/heatpump/events"

	// TopicSystem carries lifecycle events (STARTUP, SHUTDOWN, HEARTBEAT, OFFLINE).
	TopicSystem = "home/heatpump/system"

	// TopicCommand receives heatpump.Request messages.
	TopicCommand = "home/heatpump/command"

	// TopicResponse carries heatpump.Response messages.
	TopicResponse = "home/heatpump/response"
)

var (
	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrSubscribeFailed wraps subscription failures.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a device event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event heatpump.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishResponse answers a command.
	PublishResponse(resp heatpump.Response) error

	// Close disconnects from the broker.
	Close() error
}

// MessageHandler is called for each message on a subscribed topic.
// Handlers run on the MQTT client's goroutines. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Subscriber registers command handlers.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// ConnectionStatus reports whether the MQTT connection is active and how
// many messages are waiting for it.
type ConnectionStatus interface {
	IsConnected() bool
	Buffered() int
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for a device event.
type Payload struct {
	Heatpump HeatpumpPayload `json:"heatpump"`
}

// HeatpumpPayload contains the device event details.
type HeatpumpPayload struct {
	Timestamp         string `json:"timestamp"`
	Event             string `json:"event"`
	State             string `json:"state"`
	Mode              uint32 `json:"mode"`
	RoomTemperature   int32  `json:"room_temperature"`
	TargetTemperature int32  `json:"target_temperature"`
}

// StateString renders a power state for payloads and the status page.
func StateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// FormatPayload creates the JSON payload for a device event.
func FormatPayload(event heatpump.Event) ([]byte, error) {
	payload := Payload{
		Heatpump: HeatpumpPayload{
			Timestamp:         event.Timestamp.UTC().Format(time.RFC3339),
			Event:             string(event.Type),
			State:             StateString(event.Device.On()),
			Mode:              event.Device.Mode,
			RoomTemperature:   event.Device.RoomTemperature,
			TargetTemperature: event.Device.TargetTemperature,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// FormatResponse creates the JSON payload for a command response.
func FormatResponse(resp heatpump.Response) ([]byte, error) {
	return json.Marshal(resp)
}

// ParseRequest decodes a command payload.
func ParseRequest(payload []byte) (heatpump.Request, error) {
	var req heatpump.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return heatpump.Request{}, err
	}
	if req.Query == "" {
		return heatpump.Request{}, errors.New("missing query")
	}
	return req, nil
}

// willPayload is the last-will message published by the broker on an
// unexpected disconnect.
func willPayload(now time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{
		Timestamp: now,
		Event:     "OFFLINE",
		Reason:    "unexpected_disconnect",
	})
	return data
}
