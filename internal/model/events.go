package model

import "time"

// SessionEventKind enumerates the DeviceSessionEvent family.
type SessionEventKind string

const (
	SessionLoggedIn     SessionEventKind = "LoggedIn"
	SessionDisconnected SessionEventKind = "Disconnected"
)

// DeviceSessionEvent reports a login or disconnect to the downstream bus.
type DeviceSessionEvent struct {
	IMEI      string
	Kind      SessionEventKind
	Timestamp time.Time
}

// TelemetryEvent carries one decoded location/status sample to the
// downstream bus. Optional fields are nil when the wire message did not
// carry them.
type TelemetryEvent struct {
	IMEI           string
	Timestamp      time.Time
	Latitude       *float64
	Longitude      *float64
	Speed          *float64
	Course         *float64
	Satellites     *int
	GPSValid       *bool
	BatteryPercent *int
	Ignition       *bool
	GSMSignal      *int
}

// CommandOutcome enumerates the CommandEvent family.
type CommandOutcome string

const (
	CommandOutcomeSent         CommandOutcome = "Sent"
	CommandOutcomeAcknowledged CommandOutcome = "Acknowledged"
	CommandOutcomeFailed       CommandOutcome = "Failed"
	CommandOutcomeCancelled    CommandOutcome = "Cancelled"
)

// CommandEvent reports a command lifecycle transition to the downstream bus.
type CommandEvent struct {
	IMEI      string
	CommandID string
	Outcome   CommandOutcome
	Detail    string
	Timestamp time.Time
}
