package bus

import (
	"context"
	"log"
	"time"

	"github.com/golang/snappy"
	"go.mongodb.org/mongo-driver/mongo"

	"gt06gateway/internal/model"
)

// RawFrameArchiver is an optional capability a Publisher may implement to
// retain a bandwidth-sensitive, best-effort audit trail of raw wire
// frames alongside the decoded events. It is not part of the Publisher
// contract — the telemetry path works without it.
type RawFrameArchiver interface {
	ArchiveRawFrame(imei string, protocolNumber byte, raw []byte)
}

// MongoPublisher persists the three logical event families as an
// append-only audit collection: one collection handle per family,
// context.WithTimeout per operation, fire-and-forget InsertOne.
type MongoPublisher struct {
	sessionEvents *mongo.Collection
	telemetry     *mongo.Collection
	commandEvents *mongo.Collection
	rawFrames     *mongo.Collection
}

// NewMongoPublisher wires the publisher to four collections in db.
func NewMongoPublisher(db *mongo.Database) *MongoPublisher {
	return &MongoPublisher{
		sessionEvents: db.Collection("session_events"),
		telemetry:     db.Collection("telemetry"),
		commandEvents: db.Collection("command_events"),
		rawFrames:     db.Collection("raw_frame_archive"),
	}
}

type sessionEventDoc struct {
	IMEI      string    `bson:"imei"`
	Kind      string    `bson:"kind"`
	Timestamp time.Time `bson:"timestamp"`
}

func (p *MongoPublisher) PublishSessionEvent(e model.DeviceSessionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := sessionEventDoc{IMEI: e.IMEI, Kind: string(e.Kind), Timestamp: e.Timestamp}
	if _, err := p.sessionEvents.InsertOne(ctx, doc); err != nil {
		log.Printf("[bus] failed to persist session event for %s: %v", e.IMEI, err)
	}
}

type telemetryDoc struct {
	IMEI           string    `bson:"imei"`
	Timestamp      time.Time `bson:"timestamp"`
	Latitude       *float64  `bson:"latitude,omitempty"`
	Longitude      *float64  `bson:"longitude,omitempty"`
	Speed          *float64  `bson:"speed,omitempty"`
	Course         *float64  `bson:"course,omitempty"`
	Satellites     *int      `bson:"satellites,omitempty"`
	GPSValid       *bool     `bson:"gps_valid,omitempty"`
	BatteryPercent *int      `bson:"battery_percent,omitempty"`
	Ignition       *bool     `bson:"ignition,omitempty"`
	GSMSignal      *int      `bson:"gsm_signal,omitempty"`
}

func (p *MongoPublisher) PublishTelemetry(e model.TelemetryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := telemetryDoc{
		IMEI: e.IMEI, Timestamp: e.Timestamp,
		Latitude: e.Latitude, Longitude: e.Longitude, Speed: e.Speed, Course: e.Course,
		Satellites: e.Satellites, GPSValid: e.GPSValid,
		BatteryPercent: e.BatteryPercent, Ignition: e.Ignition, GSMSignal: e.GSMSignal,
	}
	if _, err := p.telemetry.InsertOne(ctx, doc); err != nil {
		log.Printf("[bus] failed to persist telemetry for %s: %v", e.IMEI, err)
	}
}

type commandEventDoc struct {
	IMEI      string    `bson:"imei"`
	CommandID string    `bson:"command_id"`
	Outcome   string    `bson:"outcome"`
	Detail    string    `bson:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

func (p *MongoPublisher) PublishCommandEvent(e model.CommandEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := commandEventDoc{
		IMEI: e.IMEI, CommandID: e.CommandID, Outcome: string(e.Outcome),
		Detail: e.Detail, Timestamp: e.Timestamp,
	}
	if _, err := p.commandEvents.InsertOne(ctx, doc); err != nil {
		log.Printf("[bus] failed to persist command event for %s: %v", e.IMEI, err)
	}
}

type rawFrameDoc struct {
	IMEI           string    `bson:"imei"`
	ProtocolNumber byte      `bson:"protocol_number"`
	Compressed     []byte    `bson:"compressed"`
	Timestamp      time.Time `bson:"timestamp"`
}

// ArchiveRawFrame snappy-compresses raw before attaching it to the audit
// document, since raw wire frames are bandwidth-sensitive at scale and
// compress well given their repetitive field layout.
func (p *MongoPublisher) ArchiveRawFrame(imei string, protocolNumber byte, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := rawFrameDoc{
		IMEI:           imei,
		ProtocolNumber: protocolNumber,
		Compressed:     snappy.Encode(nil, raw),
		Timestamp:      time.Now(),
	}
	if _, err := p.rawFrames.InsertOne(ctx, doc); err != nil {
		log.Printf("[bus] failed to archive raw frame for %s: %v", imei, err)
	}
}
