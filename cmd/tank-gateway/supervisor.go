package main

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/gateway"
	"github.com/sweeney/tank-sensor/internal/mqtt"
	"github.com/sweeney/tank-sensor/internal/registry"
	"github.com/sweeney/tank-sensor/internal/status"
)

// supervisor is the main-goroutine side of the gateway: the node registry
// and status events. The receive path and the forwarder run elsewhere.
type supervisor struct {
	q         *gateway.DeliveryQueue
	reg       *registry.Registry
	sightings <-chan registry.Sighting // from the receiver
	sink      gateway.Sink
	tracker   *status.Tracker
	pub       mqtt.Publisher // nil without MQTT
	log       *zap.SugaredLogger

	// kick reports progress of the main loop to the watchdog.
	kick func()
}

// refresh copies live counters into the tracker.
func (d *supervisor) refresh() {
	d.tracker.Update(d.q.Snapshot(), d.reg.Snapshot(), d.reg.Evicted())
	d.tracker.SetUplinkConnected(d.sink.IsUp())
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
}

func (d *supervisor) publish(now time.Time, event, reason string) {
	if d.pub == nil {
		return
	}
	d.refresh()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	d.log.Debugf("published %s event", event)
}

// runLoop keeps the registry current and publishes status until a signal
// arrives. It is the only reader of d.sightings, so the registry
// sees each node's sightings in arrival order.
func runLoop(d *supervisor, now func() time.Time, sweep, statusTick <-chan time.Time, sig <-chan os.Signal) error {
	d.publish(now(), "STARTUP", "")

	for {
		select {
		case s := <-sig:
			d.log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publish(now(), "SHUTDOWN", signalName)
			return nil

		case s := <-d.sightings:
			d.reg.Record(s)

		case <-sweep:
			d.reg.Flush(d.sightings)
			for _, id := range d.reg.Sweep(now()) {
				d.log.Infof("node %s offline", id)
			}
			d.kick()

		case <-statusTick:
			d.reg.Flush(d.sightings)
			t := now()
			d.refresh()
			snap := d.tracker.Snapshot()
			known, online := snap.NodeCounts()
			p := snap.Pipeline
			d.log.Infof("status: queue=%d/%d fallback=%d/%d sent=%d failed=%d dropped=%d malformed=%d nodes=%d/%d",
				p.QueueLen, p.QueueCap, p.FallbackLen, p.FallbackCap, p.Forwarded, p.Failed, p.Dropped, p.Malformed+p.ChecksumErrors, online, known)
			d.publish(t, "HEARTBEAT", "")
			d.kick()
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
