// Package events fans binding flow outcomes out to the MQTT bus, the
// WebSocket hub, and the metrics store.
//
// The sink implements the flow manager's event interface so every
// commit and abort, whether user-driven or from background
// rediscovery, reaches the same consumers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/infrastructure/influxdb"
	"github.com/luxbind/wiz-core/internal/infrastructure/mqtt"
)

// WebSocket channels binding events are broadcast on.
const (
	ChannelBindingCommitted = "binding.committed"
	ChannelBindingAborted   = "binding.aborted"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster pushes events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// CommittedEvent is the MQTT payload for a committed binding.
type CommittedEvent struct {
	Event     string                `json:"event"` // "committed" or "rebound"
	Trigger   string                `json:"trigger"`
	Entry     identity.BindingEntry `json:"entry"`
	Timestamp string                `json:"timestamp"`
}

// AbortedEvent is the MQTT payload for an aborted flow.
type AbortedEvent struct {
	Event     string `json:"event"` // always "aborted"
	Trigger   string `json:"trigger"`
	FlowID    string `json:"flow_id"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Sink distributes binding events. MQTT and metrics targets are
// optional; a nil target is skipped. The WebSocket broadcaster is
// attached after the API server starts via SetBroadcaster.
type Sink struct {
	mqtt    *mqtt.Client
	metrics *influxdb.Client
	logger  Logger

	mu        sync.RWMutex
	broadcast Broadcaster
}

// NewSink creates a sink. Either client may be nil.
func NewSink(mqttClient *mqtt.Client, metrics *influxdb.Client) *Sink {
	return &Sink{
		mqtt:    mqttClient,
		metrics: metrics,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the sink.
func (s *Sink) SetLogger(logger Logger) {
	s.logger = logger
}

// SetBroadcaster attaches the WebSocket hub once it is running.
func (s *Sink) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.broadcast = b
	s.mu.Unlock()
}

// BindingCommitted publishes a committed (or re-bound) entry.
func (s *Sink) BindingCommitted(_ context.Context, entry *identity.BindingEntry, trigger flow.Trigger, rebound bool) {
	event := "committed"
	if rebound {
		event = "rebound"
	}

	payload := CommittedEvent{
		Event:     event,
		Trigger:   string(trigger),
		Entry:     *entry,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.publish(payload)
	s.send(ChannelBindingCommitted, payload)
	if s.metrics != nil {
		s.metrics.WriteBindingEvent(event, string(trigger))
	}
}

// BindingAborted publishes a flow abort with its reason.
func (s *Sink) BindingAborted(_ context.Context, flowID, reason string, trigger flow.Trigger) {
	payload := AbortedEvent{
		Event:     "aborted",
		Trigger:   string(trigger),
		FlowID:    flowID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	s.publish(payload)
	s.send(ChannelBindingAborted, payload)
	if s.metrics != nil {
		s.metrics.WriteBindingEvent("aborted", string(trigger))
	}
}

// ScanCompleted records a discovery scan in the metrics store.
func (s *Sink) ScanCompleted(_ context.Context, broadcast string, found int, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.WriteScanResult(broadcast, found, duration)
	}
}

// ValidationCompleted records a validation attempt and its outcome.
func (s *Sink) ValidationCompleted(_ context.Context, host, outcome string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.WriteValidationResult(host, outcome, duration)
	}
}

// publish sends the event to the MQTT binding-event topic.
func (s *Sink) publish(payload any) {
	if s.mqtt == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal binding event", "error", err)
		return
	}
	if err := s.mqtt.PublishJSON(mqtt.Topics{}.BindingEvent(), data); err != nil {
		s.logger.Warn("failed to publish binding event", "error", err)
	}
}

// send broadcasts the event to WebSocket clients, if a hub is attached.
func (s *Sink) send(channel string, payload any) {
	s.mu.RLock()
	b := s.broadcast
	s.mu.RUnlock()

	if b != nil {
		b.Broadcast(channel, payload)
	}
}
