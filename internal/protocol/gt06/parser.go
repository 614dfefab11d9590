package gt06

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Parse decodes a validated Frame's payload into a typed Event. The
// frame's CRC and framing have already been verified by the Codec;
// Parse only interprets payload bytes and never re-checks CRC.
func Parse(f *Frame) (*Event, error) {
	bucket := classify(f.ProtocolNumber)

	switch bucket {
	case bucketLogin:
		login, err := decodeLogin(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventLogin, SerialNumber: f.SerialNumber, Login: login}, nil

	case bucketLocation:
		loc, err := decodeLocation(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventLocation, SerialNumber: f.SerialNumber, Location: loc}, nil

	case bucketStatus:
		status, err := decodeStatus(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventStatus, SerialNumber: f.SerialNumber, Status: status}, nil

	case bucketHeartbeat:
		hb, err := decodeHeartbeat(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventHeartbeat, SerialNumber: f.SerialNumber, Heartbeat: hb}, nil

	case bucketAlarm:
		alarm, err := decodeAlarm(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventAlarm, SerialNumber: f.SerialNumber, Alarm: alarm}, nil

	case bucketWifi:
		wifi, err := decodeWifi(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventWifi, SerialNumber: f.SerialNumber, Wifi: wifi}, nil

	case bucketInfo:
		info, err := decodeInfo(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventInfo, SerialNumber: f.SerialNumber, Info: info}, nil

	case bucketCommandResponse:
		resp, err := decodeCommandResponse(f.Payload)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventCommandResponse, SerialNumber: f.SerialNumber, CommandResponse: resp}, nil

	case bucketStringCommandResponse:
		resp := decodeStringCommandResponse(f.Payload)
		return &Event{Kind: EventCommandResponse, SerialNumber: f.SerialNumber, CommandResponse: resp}, nil

	case bucketAddressResp:
		return &Event{
			Kind:         EventAddressRequest,
			SerialNumber: f.SerialNumber,
			AddressRequest: &AddressRequest{
				Raw: append([]byte(nil), f.Payload...),
			},
		}, nil

	default:
		return &Event{
			Kind:         EventUnknown,
			SerialNumber: f.SerialNumber,
			Unknown: &Unknown{
				ProtocolNumber: f.ProtocolNumber,
				Payload:        append([]byte(nil), f.Payload...),
			},
		}, nil
	}
}

// decodeDateTime interprets the 6-byte BCD-free binary YY MM DD hh mm ss
// field GT06 uses throughout, applying the 49/50 century split: a two
// digit year of 49 or below is 20xx, 50 or above is 19xx.
func decodeDateTime(b []byte) (time.Time, error) {
	if len(b) < 6 {
		return time.Time{}, fmt.Errorf("%w: datetime needs 6 bytes, got %d", ErrDecode, len(b))
	}
	yy := int(b[0])
	year := 2000 + yy
	if yy >= 50 {
		year = 1900 + yy
	}
	month, day, hour, minute, second := int(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: implausible datetime %04d-%02d-%02d %02d:%02d:%02d",
			ErrDecode, year, month, day, hour, minute, second)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

func encodeDateTime(t time.Time) []byte {
	t = t.UTC()
	yy := t.Year() % 100
	return []byte{byte(yy), byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second())}
}

func decodeLogin(payload []byte) (*Login, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: login payload needs at least 8 bytes, got %d", ErrDecode, len(payload))
	}
	imei, err := DecodeIMEI(payload[:8])
	if err != nil {
		return nil, err
	}
	variant := UnknownDeviceVariant
	if len(payload) >= 10 {
		variant = fmt.Sprintf("0x%04X", binary.BigEndian.Uint16(payload[8:10]))
	}
	return &Login{IMEI: imei, DeviceVariant: variant}, nil
}

// UnknownDeviceVariant is reported when a login frame carries no type
// identifier field.
const UnknownDeviceVariant = "UNKNOWN"

const locationCoreLength = 18
const lbsBlockLength = 8

// decodeLocation parses the common GPS+LBS payload shape shared by the
// 0x12/0x1A/0x22/0x26/0x32/0x94 family. Trailing bytes
// beyond the LBS block (status/voltage/alarm fields some variants embed)
// are ignored here; decodeAlarm re-parses the same core and additionally
// consumes the trailing status byte.
func decodeLocation(payload []byte) (*Location, error) {
	if len(payload) < locationCoreLength {
		return nil, fmt.Errorf("%w: location payload needs at least %d bytes, got %d",
			ErrDecode, locationCoreLength, len(payload))
	}

	ts, err := decodeDateTime(payload[0:6])
	if err != nil {
		return nil, err
	}

	satellites := int(payload[6] & 0x0F)

	rawLat := binary.BigEndian.Uint32(payload[7:11])
	rawLon := binary.BigEndian.Uint32(payload[11:15])
	speed := float64(payload[15])
	courseStatus := binary.BigEndian.Uint16(payload[16:18])

	course := float64(courseStatus & 0x03FF)
	lonIsWest := courseStatus&0x0400 != 0
	latIsSouth := courseStatus&0x0800 == 0
	gpsFixed := courseStatus&0x1000 != 0
	ignition := courseStatus&0x2000 != 0
	externalPower := courseStatus&0x4000 != 0

	lat := float64(rawLat) / coordinateScale
	lon := float64(rawLon) / coordinateScale
	if latIsSouth {
		lat = -lat
	}
	if lonIsWest {
		lon = -lon
	}

	coordinateValid := !(rawLat == 0 && rawLon == 0)

	accuracy := 50.0
	if satellites > 0 {
		accuracy = 15.0 - float64(satellites)
		if accuracy < 3.0 {
			accuracy = 3.0
		}
	}

	loc := &Location{
		Timestamp:        ts,
		Latitude:         lat,
		Longitude:        lon,
		Speed:            speed,
		Course:           course,
		Satellites:       satellites,
		GPSFixed:         gpsFixed,
		CoordinateValid:  coordinateValid,
		AccuracyEstimate: accuracy,
	}
	ign := ignition
	ext := externalPower
	loc.Ignition = &ign
	loc.ExternalPower = &ext

	if len(payload) >= locationCoreLength+lbsBlockLength {
		lbs := payload[locationCoreLength : locationCoreLength+lbsBlockLength]
		loc.MCC = binary.BigEndian.Uint16(lbs[0:2])
		loc.MNC = uint16(lbs[2])
		loc.LAC = binary.BigEndian.Uint16(lbs[3:5])
		loc.CellID = uint32(lbs[5])<<16 | uint32(lbs[6])<<8 | uint32(lbs[7])
	}

	return loc, nil
}

// statusByte bit layout shared by Status/Heartbeat/Alarm payload tails:
// terminal_info bit 2 is charging, bit 1 is ignition.
const (
	statusBitCharging = 0x04
	statusBitIgnition = 0x02
	statusAlarmShift  = 3
	statusAlarmMask   = 0x07
)

func decodeStatus(payload []byte) (*Status, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: status payload needs at least 1 byte, got %d", ErrDecode, len(payload))
	}
	statusByte := payload[0]
	st := &Status{
		Charging:  statusByte&statusBitCharging != 0,
		Ignition:  statusByte&statusBitIgnition != 0,
		AlarmCode: int((statusByte >> statusAlarmShift) & statusAlarmMask),
	}
	if len(payload) >= 2 {
		st.BatteryPercent = batteryPercentFromLevel(int(payload[1]))
	}
	if len(payload) >= 3 {
		st.GSMSignalLevel = int(payload[2])
		st.GSMSignalDBM = gsmSignalToDBM(st.GSMSignalLevel)
	}
	return st, nil
}

func decodeHeartbeat(payload []byte) (*Heartbeat, error) {
	st, err := decodeStatus(payload)
	if err != nil {
		return nil, err
	}
	return &Heartbeat{
		BatteryPercent: st.BatteryPercent,
		Charging:       st.Charging,
		Ignition:       st.Ignition,
		GSMSignalLevel: st.GSMSignalLevel,
		GSMSignalDBM:   st.GSMSignalDBM,
	}, nil
}

func decodeAlarm(payload []byte) (*Alarm, error) {
	if len(payload) >= locationCoreLength {
		loc, err := decodeLocation(payload)
		if err != nil {
			return nil, err
		}
		tail := payload[locationCoreLength:]
		if len(tail) >= lbsBlockLength {
			tail = tail[lbsBlockLength:]
		}
		code := AlarmNone
		if len(tail) >= 1 {
			code = int((tail[0] >> statusAlarmShift) & statusAlarmMask)
		}
		return &Alarm{Code: code, Location: loc}, nil
	}
	st, err := decodeStatus(payload)
	if err != nil {
		return nil, err
	}
	return &Alarm{Code: st.AlarmCode}, nil
}

// batteryPercentFromLevel maps the coarse 0-6 battery level some GT06
// variants report (rather than a raw percentage) onto an approximate
// percentage band. A value of 7-100 is taken as a percentage and passed
// through unchanged; anything above 100 is clamped to 100.
func batteryPercentFromLevel(v int) int {
	if v > 6 {
		if v > 100 {
			return 100
		}
		return v
	}
	bands := [...]int{0, 10, 25, 50, 75, 90, 100}
	if v < 0 {
		v = 0
	}
	if v >= len(bands) {
		v = len(bands) - 1
	}
	return bands[v]
}

func decodeWifi(payload []byte) (*Wifi, error) {
	const apLength = 7
	if len(payload)%apLength != 0 || len(payload) == 0 {
		return nil, fmt.Errorf("%w: wifi payload length %d not a multiple of %d", ErrDecode, len(payload), apLength)
	}
	var aps []WifiAP
	for off := 0; off+apLength <= len(payload); off += apLength {
		mac := payload[off : off+6]
		aps = append(aps, WifiAP{
			MAC:    fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5]),
			Signal: int(int8(payload[off+6])),
		})
	}
	return &Wifi{AccessPoints: aps}, nil
}

func decodeInfo(payload []byte) (*Info, error) {
	if len(payload) < 1 {
		return &Info{Text: ""}, nil
	}
	return &Info{Text: string(payload[1:])}, nil
}

func decodeCommandResponse(payload []byte) (*CommandResponse, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: command response payload needs at least 4 bytes, got %d", ErrDecode, len(payload))
	}
	return &CommandResponse{
		ServerFlag: binary.BigEndian.Uint32(payload[0:4]),
		Text:       string(payload[4:]),
	}, nil
}

// decodeStringCommandResponse decodes protocol 0x21: the device's reply
// text with no server-flag prefix, unlike 0x8A.
func decodeStringCommandResponse(payload []byte) *CommandResponse {
	return &CommandResponse{Text: string(payload)}
}
