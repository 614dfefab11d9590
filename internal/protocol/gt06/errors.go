package gt06

import "errors"

// Sentinel errors for the framing and decoding failure modes the gateway
// recovers from locally: frame sync loss, checksum mismatch, malformed
// payloads, and short reads.
var (
	ErrFrameSync          = errors.New("gt06: frame sync failure")
	ErrChecksum           = errors.New("gt06: crc checksum mismatch")
	ErrDecode             = errors.New("gt06: malformed payload")
	ErrPacketTooShort     = errors.New("gt06: packet shorter than minimum frame size")
	ErrInvalidLength      = errors.New("gt06: declared length out of range")
	ErrInvalidIMEI        = errors.New("gt06: invalid BCD IMEI")
	ErrNeedMoreData       = errors.New("gt06: need more data")
	ErrUnsupportedProtocol = errors.New("gt06: unsupported protocol number")
)
