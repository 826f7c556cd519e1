package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tank-sensor/internal/status"
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
	"ago": func(now, then time.Time) string {
		return now.Sub(then).Truncate(time.Second).String()
	},
	"modeOrPrimary": func(s string) string {
		if s == "" {
			return "primary"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tank Gateway</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.nodes th { width: auto; }
.connected, .online { color: green; }
.disconnected { color: red; }
.offline { color: #888; }
</style>
</head>
<body>
<h1>Tank Gateway {{.Config.Gateway}}</h1>

<h2>Uplink</h2>
<table>
<tr><th>Mode</th><td>{{modeOrPrimary .Config.Mode}}</td></tr>
{{if .Config.Uplink}}<tr><th>Uplink</th><td>{{.Config.Uplink}}</td></tr>{{end}}
<tr><th>Connected</th><td class="{{if .UplinkConnected}}connected{{else}}disconnected{{end}}">{{if .UplinkConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Queue</h2>
<table>
<tr><th>Primary</th><td>{{.Pipeline.QueueLen}} / {{.Pipeline.QueueCap}}</td></tr>
<tr><th>Fallback</th><td>{{.Pipeline.FallbackLen}} / {{.Pipeline.FallbackCap}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Received</th><td>{{.Pipeline.Received}}</td></tr>
<tr><th>Sent</th><td>{{.Pipeline.Forwarded}}</td></tr>
<tr><th>Failed</th><td>{{.Pipeline.Failed}}</td></tr>
<tr><th>Dropped</th><td>{{.Pipeline.Dropped}}</td></tr>
<tr><th>Malformed</th><td>{{.Pipeline.Malformed}}</td></tr>
<tr><th>Checksum errors</th><td>{{.Pipeline.ChecksumErrors}}</td></tr>
<tr><th>Retries</th><td>{{.Pipeline.Retries}}</td></tr>
</table>

<h2>Nodes ({{.Online}} of {{len .Nodes}} online)</h2>
<table class="nodes">
<tr><th>MAC</th><th>Last seen</th><th>Messages</th><th>RSSI</th><th>State</th></tr>
{{range .Nodes}}<tr><td>{{.ID}}</td><td>{{ago $.Now .LastSeen}} ago</td><td>{{.MessageCount}}</td><td>{{.LastSignal}}</td><td class="{{if .Online}}online{{else}}offline{{end}}">{{if .Online}}online{{else}}offline{{end}}{{if .RelayPeer}} (relayed){{end}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/nodes.json">Nodes</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has methods but the template needs plain fields.
	_, online := snap.NodeCounts()
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Online int
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Online:   online,
	}
	indexTmpl.Execute(w, data)
}
