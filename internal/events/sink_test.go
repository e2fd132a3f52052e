package events

import (
	"context"
	"testing"
	"time"

	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/identity"
)

type mockBroadcaster struct {
	channels []string
	payloads []any
}

func (b *mockBroadcaster) Broadcast(channel string, payload any) {
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
}

func TestSink_BindingCommitted(t *testing.T) {
	sink := NewSink(nil, nil)
	b := &mockBroadcaster{}
	sink.SetBroadcaster(b)

	entry := &identity.BindingEntry{
		UniqueID: "a8bb50d46a9f",
		Host:     "192.168.1.44",
		Title:    "WiZ RGBWW Tunable D46A9F",
	}
	sink.BindingCommitted(context.Background(), entry, flow.TriggerUser, false)

	if len(b.channels) != 1 || b.channels[0] != ChannelBindingCommitted {
		t.Fatalf("channels = %v, want [%s]", b.channels, ChannelBindingCommitted)
	}
	event, ok := b.payloads[0].(CommittedEvent)
	if !ok {
		t.Fatalf("payload type = %T, want CommittedEvent", b.payloads[0])
	}
	if event.Event != "committed" {
		t.Errorf("event = %q, want committed", event.Event)
	}
	if event.Trigger != string(flow.TriggerUser) {
		t.Errorf("trigger = %q, want %q", event.Trigger, flow.TriggerUser)
	}
	if event.Entry.UniqueID != entry.UniqueID {
		t.Errorf("entry unique ID = %q, want %q", event.Entry.UniqueID, entry.UniqueID)
	}
}

func TestSink_ReboundUsesDistinctEvent(t *testing.T) {
	sink := NewSink(nil, nil)
	b := &mockBroadcaster{}
	sink.SetBroadcaster(b)

	entry := &identity.BindingEntry{UniqueID: "a8bb50d46a9f", Host: "192.168.1.80"}
	sink.BindingCommitted(context.Background(), entry, flow.TriggerHint, true)

	event := b.payloads[0].(CommittedEvent)
	if event.Event != "rebound" {
		t.Errorf("event = %q, want rebound", event.Event)
	}
}

func TestSink_BindingAborted(t *testing.T) {
	sink := NewSink(nil, nil)
	b := &mockBroadcaster{}
	sink.SetBroadcaster(b)

	sink.BindingAborted(context.Background(), "flow-1", "cannot_connect", flow.TriggerHint)

	if len(b.channels) != 1 || b.channels[0] != ChannelBindingAborted {
		t.Fatalf("channels = %v, want [%s]", b.channels, ChannelBindingAborted)
	}
	event, ok := b.payloads[0].(AbortedEvent)
	if !ok {
		t.Fatalf("payload type = %T, want AbortedEvent", b.payloads[0])
	}
	if event.Reason != "cannot_connect" {
		t.Errorf("reason = %q, want cannot_connect", event.Reason)
	}
	if event.FlowID != "flow-1" {
		t.Errorf("flow ID = %q, want flow-1", event.FlowID)
	}
}

func TestSink_NoBroadcasterIsSafe(t *testing.T) {
	sink := NewSink(nil, nil)
	entry := &identity.BindingEntry{UniqueID: "a8bb50d46a9f"}

	// No MQTT, metrics, or hub attached: nothing to do, nothing to panic.
	sink.BindingCommitted(context.Background(), entry, flow.TriggerUser, false)
	sink.BindingAborted(context.Background(), "flow-1", "no_devices_found", flow.TriggerUser)
	sink.ScanCompleted(context.Background(), "255.255.255.255", 3, time.Second)
	sink.ValidationCompleted(context.Background(), "192.168.1.44", "ok", time.Second)
}
