package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Device        DeviceJSON   `json:"device"`
	LED           LEDJSON      `json:"led"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DeviceJSON is the JSON representation of the heat pump state.
type DeviceJSON struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	State             string `json:"state"`
	Mode              uint32 `json:"mode"`
	RoomTemperature   int32  `json:"room_temperature"`
	TargetTemperature int32  `json:"target_temperature"`
}

// LEDJSON is the JSON representation of the blink controller.
type LEDJSON struct {
	Running     bool   `json:"running"`
	Pin         int    `json:"pin"`
	Temperature int    `json:"temperature"`
	DelayMs     int64  `json:"delay_ms"`
	Cycles      uint64 `json:"cycles"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	DelayMinMs  int    `json:"delay_min_ms"`
	DelayMaxMs  int    `json:"delay_max_ms"`
	TempMin     int    `json:"temp_min"`
	TempMax     int    `json:"temp_max"`
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Device: DeviceJSON{
			Name:              snap.Device.Info.Name,
			Type:              snap.Device.Info.Type,
			State:             stateString(snap.Device.On()),
			Mode:              snap.Device.Mode,
			RoomTemperature:   snap.Device.RoomTemperature,
			TargetTemperature: snap.Device.TargetTemperature,
		},
		LED: LEDJSON{
			Running:     snap.Blink.Running,
			Pin:         snap.Blink.Pin,
			Temperature: snap.Blink.Temperature,
			DelayMs:     snap.Blink.DelayMs,
			Cycles:      snap.Blink.Cycles,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			DelayMinMs:  snap.Config.DelayMinMs,
			DelayMaxMs:  snap.Config.DelayMaxMs,
			TempMin:     snap.Config.TempMin,
			TempMax:     snap.Config.TempMax,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
