package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/heatpump-blink/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"deviceName": func(name string) string {
		if name == "" {
			return "Heatpump"
		}
		return name
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>{{deviceName .Device.Info.Name}} Blink</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{deviceName .Device.Info.Name}}</h1>

<h2>Heat Pump</h2>
<table>
<tr><th>State</th><td id="hp-state" class="{{if .Device.On}}on{{else}}off{{end}}">{{if .Device.On}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Mode</th><td>{{.Device.Mode}}</td></tr>
<tr><th>Room</th><td id="room-temp">{{.Device.RoomTemperature}}&deg;C</td></tr>
<tr><th>Target</th><td id="target-temp">{{.Device.TargetTemperature}}&deg;C</td></tr>
</table>

<h2>LED</h2>
<table>
<tr><th>Blinking</th><td id="led-state" class="{{if .Blink.Running}}on{{else}}off{{end}}">{{if .Blink.Running}}yes{{else}}no{{end}}</td></tr>
<tr><th>Pin</th><td>GPIO{{.Blink.Pin}}</td></tr>
<tr><th>Temperature</th><td>{{.Blink.Temperature}}&deg;C</td></tr>
<tr><th>Delay</th><td id="led-delay">{{.Blink.DelayMs}}ms</td></tr>
<tr><th>Cycles</th><td>{{.Blink.Cycles}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Range</th><td>{{.Config.TempMin}}..{{.Config.TempMax}}&deg;C &rarr; {{.Config.DelayMaxMs}}..{{.Config.DelayMinMs}}ms</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
