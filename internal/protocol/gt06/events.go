package gt06

import "time"

// EventKind discriminates the decoded Event union.
type EventKind string

const (
	EventLogin           EventKind = "Login"
	EventLocation        EventKind = "Location"
	EventStatus          EventKind = "Status"
	EventHeartbeat       EventKind = "Heartbeat"
	EventLBSCell         EventKind = "LbsCell"
	EventWifi            EventKind = "Wifi"
	EventAlarm           EventKind = "Alarm"
	EventInfo            EventKind = "Info"
	EventAddressRequest  EventKind = "AddressRequest"
	EventCommandResponse EventKind = "CommandResponse"
	EventUnknown         EventKind = "Unknown"
)

// Login is decoded from protocol 0x01: a device identifying itself.
type Login struct {
	IMEI          string
	DeviceVariant string
}

// Location carries a GPS+LBS fix, decoded from the 0x12/0x1A/0x22/0x26/0x32/0x94
// family.
type Location struct {
	Timestamp        time.Time
	Latitude         float64
	Longitude        float64
	Speed            float64
	Course           float64
	Satellites       int
	GPSFixed         bool
	CoordinateValid  bool
	AccuracyEstimate float64
	MCC              uint16
	MNC              uint16
	LAC              uint16
	CellID           uint32
	Ignition         *bool
	ExternalPower    *bool
}

// Status is decoded from protocol 0x13: terminal/battery/GSM status.
type Status struct {
	BatteryPercent int
	Charging       bool
	Ignition       bool
	GSMSignalLevel int
	GSMSignalDBM   int
	AlarmCode      int
}

// Heartbeat is decoded from protocol 0x23, structurally identical to
// Status but sent on the idle keepalive cadence.
type Heartbeat struct {
	BatteryPercent int
	Charging       bool
	Ignition       bool
	GSMSignalLevel int
	GSMSignalDBM   int
}

// LBSCell is a standalone cell-tower report. Parse never produces an
// EventLBSCell: cell fields that arrive in a location frame are decoded
// into Location's MCC/MNC/LAC/CellID, and no protocol number is
// classified as a standalone LBS report.
type LBSCell struct {
	MCC    uint16
	MNC    uint16
	LAC    uint16
	CellID uint32
}

// Wifi is decoded from protocol 0x17: nearby access point fingerprints
// used for Wi-Fi-assisted positioning.
type Wifi struct {
	AccessPoints []WifiAP
}

// WifiAP is one access point observation within a Wifi event.
type WifiAP struct {
	MAC    string
	Signal int
}

// Alarm is decoded from protocol 0x16 or from the alarm field embedded in
// a status/location message.
type Alarm struct {
	Code     int
	Location *Location
}

// Info is decoded from protocol 0x15: free-form string information
// (ICCID, driver ID, and similar vendor extensions).
type Info struct {
	Text string
}

// AddressRequest is decoded from protocol 0x2A: a device asking the
// server to resolve its last fix to a human-readable address. The
// gateway has no geocoding backend wired in, so the reply half of the
// conversation is the same generic frame-level acknowledgment every
// other message gets; there is no separate AddressResponse event to
// parse, since the response is server-built, not device-sent.
type AddressRequest struct {
	Raw []byte
}

// CommandResponse is decoded from protocol 0x8A (with a server flag) or
// 0x21 (text only): the terminal's reply to a server-issued command.
type CommandResponse struct {
	ServerFlag uint32
	Text       string
}

// Unknown preserves any frame whose protocol number the parser does not
// classify, so the gateway never silently discards wire traffic.
type Unknown struct {
	ProtocolNumber byte
	Payload        []byte
}

// Event is the decoded, typed result of parsing one frame's payload.
// Exactly one of the typed fields is non-nil, selected by Kind.
type Event struct {
	Kind            EventKind
	SerialNumber    uint16
	Login           *Login
	Location        *Location
	Status          *Status
	Heartbeat       *Heartbeat
	LBSCell         *LBSCell
	Wifi            *Wifi
	Alarm           *Alarm
	Info            *Info
	AddressRequest  *AddressRequest
	CommandResponse *CommandResponse
	Unknown         *Unknown
}
