package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

func TestTelemetryTopic(t *testing.T) {
	id := protocol.DeviceID{0x24, 0x6F, 0x28, 0xA1, 0xB2, 0xC3}
	if got := TelemetryTopic(DefaultTopicBase, id); got != "aguada/telemetry/246f28a1b2c3" {
		t.Errorf("unexpected topic: %s", got)
	}
	if got := TelemetryTopic("site/tanks/", id); got != "site/tanks/246f28a1b2c3" {
		t.Errorf("trailing slash not trimmed: %s", got)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("JSON mismatch:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 19, 0, 0, 0, loc),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
	if parsed.System.Reason != "" {
		t.Errorf("expected empty reason, got %s", parsed.System.Reason)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	expected := `{"system":{"event":"OFFLINE","reason":"connection lost"}}`
	if got := string(willPayload()); got != expected {
		t.Errorf("LWT mismatch:\ngot:  %s\nwant: %s", got, expected)
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	events := []SystemEvent{
		{Timestamp: time.Now(), Event: "STARTUP", Retained: true},
		{Timestamp: time.Now(), Event: "HEARTBEAT"},
		{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "SIGINT", Retained: true},
	}
	for _, e := range events {
		if err := f.PublishSystem(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got := f.Events()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"} {
		if got[i].Event != want {
			t.Errorf("event %d: got %s, want %s", i, got[i].Event, want)
		}
	}
	if !got[0].Retained || got[1].Retained {
		t.Error("retained flag not preserved")
	}
	if len(f.SystemPayloads) != 3 {
		t.Errorf("expected 3 payloads, got %d", len(f.SystemPayloads))
	}
	if n := f.Count("HEARTBEAT"); n != 1 {
		t.Errorf("heartbeat count: got %d, want 1", n)
	}
	if last, ok := f.Last(); !ok || last.Event != "SHUTDOWN" {
		t.Errorf("last event: got %+v", last)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events()) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Connected = true
	f.Close()

	f.Reset()

	if len(f.Events()) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("expected events cleared")
	}
	if _, ok := f.Last(); ok {
		t.Error("expected no last event after reset")
	}
	if f.Closed || f.IsConnected() {
		t.Error("expected flags cleared")
	}
}
