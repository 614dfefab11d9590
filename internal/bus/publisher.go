// Package bus defines the downstream event publisher contract: the
// gateway does not specify a wire format, only the three logical event
// families it produces.
package bus

import "gt06gateway/internal/model"

// Publisher is implemented by every downstream bus adapter.
type Publisher interface {
	PublishSessionEvent(model.DeviceSessionEvent)
	PublishTelemetry(model.TelemetryEvent)
	PublishCommandEvent(model.CommandEvent)
}

// NoopPublisher discards every event. Used in tests and when no Mongo URI
// is configured, so the gateway still runs without a downstream sink.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionEvent(model.DeviceSessionEvent) {}
func (NoopPublisher) PublishTelemetry(model.TelemetryEvent)        {}
func (NoopPublisher) PublishCommandEvent(model.CommandEvent)       {}
