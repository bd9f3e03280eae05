package main

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/heatpump-blink/internal/heatpump"
	"github.com/sweeney/heatpump-blink/internal/mqtt"
)

// commandHandler runs requests against the device and publishes the
// outcome. It serves both the MQTT command topic and the HTTP /command
// endpoint, so it may be called from several goroutines at once.
type commandHandler struct {
	device    *heatpump.Device
	publisher mqtt.Publisher
	now       func() time.Time
}

// execute parses and runs one request. A resulting device event is published
// on the events topic; the response is returned to the caller.
func (h *commandHandler) execute(payload []byte) (heatpump.Response, error) {
	req, err := mqtt.ParseRequest(payload)
	if err != nil {
		return heatpump.Response{}, err
	}
	return h.run(req), nil
}

func (h *commandHandler) run(req heatpump.Request) heatpump.Response {
	resp, event := h.device.Handle(req, h.now())
	if resp.Status != heatpump.StatusOK {
		log.Printf("command: %s -> %s", req.Query, resp.Status)
	}
	if event != nil {
		log.Printf("event: %s (state=%d target=%d room=%d)",
			event.Type, event.Device.State, event.Device.TargetTemperature, event.Device.RoomTemperature)
		if err := h.publisher.Publish(*event); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
	return resp
}

// subscribe registers handleMessage on the command topic.
func (h *commandHandler) subscribe(sub mqtt.Subscriber) error {
	return sub.Subscribe(mqtt.TopicCommand, h.handleMessage)
}

// handleMessage is the MQTT handler for the command topic. The response is
// published on the response topic.
func (h *commandHandler) handleMessage(topic string, payload []byte) error {
	resp, err := h.execute(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	if err := h.publisher.PublishResponse(resp); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}
	return nil
}
