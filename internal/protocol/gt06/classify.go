package gt06

// messageBucket groups protocol numbers into the decoding strategy the
// parser applies to them. Several protocol numbers
// are reused across device families for unrelated payloads (0x17 is Wifi
// on most variants but collides with an address-response format on
// others; 0x94 is a GPS+LBS extension on some variants and a 4G status
// report on others); bucketing is deliberately coarse and the parser
// falls back to field-count heuristics within a bucket rather than
// trying to fully disambiguate by protocol number alone.
//
// 0x8A and 0x21 both carry a device's reply to a server-issued command:
// 0x8A prefixes it with a 4-byte server flag, 0x21 carries the ASCII text
// directly, so they decode through separate buckets that converge on the
// same CommandResponse event.
type messageBucket int

const (
	bucketUnknown messageBucket = iota
	bucketLogin
	bucketLocation
	bucketStatus
	bucketHeartbeat
	bucketAlarm
	bucketWifi
	bucketInfo
	bucketAddressResp
	bucketCommandResponse
	bucketStringCommandResponse
)

var protocolBuckets = map[byte]messageBucket{
	ProtoLogin:             bucketLogin,
	ProtoGPSLBS:            bucketLocation,
	ProtoStatus:            bucketStatus,
	ProtoStringInfo:        bucketInfo,
	ProtoAlarm:             bucketAlarm,
	ProtoWifi:              bucketWifi,
	ProtoGPSLBSData:        bucketLocation,
	ProtoStringCommandResp: bucketStringCommandResponse,
	ProtoGPSLBSStatus22:    bucketLocation,
	ProtoHeartbeat23:       bucketHeartbeat,
	ProtoGPSLBSStatus26:    bucketLocation,
	ProtoAddressRequest:    bucketAddressResp,
	ProtoGPSLBS32:          bucketLocation,
	ProtoGPSLBS94:          bucketLocation,
	ProtoCommandResp8A:     bucketCommandResponse,
	Proto4GWifiStatusA2:    bucketStatus,
}

func classify(protocolNumber byte) messageBucket {
	if b, ok := protocolBuckets[protocolNumber]; ok {
		return b
	}
	return bucketUnknown
}
