package gt06

import (
	"sync/atomic"
)

// Frame is the validated envelope of one GT06 packet.
type Frame struct {
	StartMarker    uint16
	DeclaredLength int
	ProtocolNumber byte
	Payload        []byte
	SerialNumber   uint16
	CRC            uint16
	StopMarker     uint16
}

// Codec recovers framed GT06 messages from a growing, per-connection byte
// stream. It owns its buffer exclusively; nothing outside the owning
// connection goroutine may touch it.
type Codec struct {
	buf []byte
}

// NewCodec returns an empty frame codec for one connection.
func NewCodec() *Codec {
	return &Codec{}
}

// Feed appends newly-read bytes to the codec's internal buffer.
func (c *Codec) Feed(data []byte) {
	c.buf = append(c.buf, data...)
}

// Buffered reports how many bytes are currently held, for diagnostics.
func (c *Codec) Buffered() int {
	return len(c.buf)
}

// NextFrame extracts and validates the next complete frame from the
// buffer. It returns
// (frame, true, nil) on success, (nil, false, nil) when more data is
// needed, and (nil, false, err) only for conditions the caller cannot
// recover from by reading more bytes (there are none in the current
// design — decode/framing failures are all handled internally by
// resyncing).
func (c *Codec) NextFrame() (*Frame, bool, error) {
	for {
		idx := findStartMarker(c.buf)
		if idx == -1 {
			// Keep a possible half-marker trailing byte so it can combine
			// with the next read (boundary-safe start-marker search).
			if len(c.buf) > 0 {
				c.buf = c.buf[len(c.buf)-1:]
			}
			return nil, false, nil
		}
		if idx > 0 {
			c.buf = c.buf[idx:]
		}

		if len(c.buf) < MinFrameSize {
			return nil, false, nil
		}

		startMarker := uint16(c.buf[0])<<8 | uint16(c.buf[1])

		lengthFieldSize := 1
		if startMarker == StartLong {
			lengthFieldSize = 2
		}
		if len(c.buf) < 2+lengthFieldSize {
			return nil, false, nil
		}

		var declared int
		maxDeclared := maxContentLength1
		if lengthFieldSize == 1 {
			declared = int(c.buf[2])
		} else {
			declared = int(c.buf[2])<<8 | int(c.buf[3])
			maxDeclared = maxContentLength2
		}

		if declared < minContentLength || declared > maxDeclared {
			c.buf = c.buf[1:]
			continue
		}

		totalSize := 2 + lengthFieldSize + declared + 2
		if len(c.buf) < totalSize {
			return nil, false, nil
		}

		frameBytes := c.buf[:totalSize]
		stopOffset := totalSize - 2
		stopMarker := uint16(frameBytes[stopOffset])<<8 | uint16(frameBytes[stopOffset+1])
		if stopMarker != Stop {
			c.buf = c.buf[1:]
			continue
		}

		// The whole frame (valid stop marker) is consumed from the buffer
		// here; a CRC failure below still resyncs from the next byte past
		// this failed frame, not from inside it.
		c.buf = c.buf[totalSize:]

		protocolIdx := 2 + lengthFieldSize
		serialIdx := stopOffset - 4
		crcIdx := stopOffset - 2

		calcCRC := CalculateCRC(frameBytes[2:crcIdx])
		recvCRC := uint16(frameBytes[crcIdx])<<8 | uint16(frameBytes[crcIdx+1])
		if calcCRC != recvCRC {
			continue
		}

		frame := &Frame{
			StartMarker:    startMarker,
			DeclaredLength: declared,
			ProtocolNumber: frameBytes[protocolIdx],
			Payload:        append([]byte(nil), frameBytes[protocolIdx+1:serialIdx]...),
			SerialNumber:   uint16(frameBytes[serialIdx])<<8 | uint16(frameBytes[serialIdx+1]),
			CRC:            recvCRC,
			StopMarker:     stopMarker,
		}
		return frame, true, nil
	}
}

func findStartMarker(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		marker := uint16(buf[i])<<8 | uint16(buf[i+1])
		if marker == StartShort || marker == StartLong {
			return i
		}
	}
	return -1
}

// BuildLoginAck constructs the login acknowledgment frame.
func BuildLoginAck(serial uint16) []byte {
	return buildGenericResponse(ProtoLogin, serial)
}

// BuildGenericAck constructs a generic acknowledgment echoing the inbound
// protocol number and serial.
func BuildGenericAck(protocolNumber byte, serial uint16) []byte {
	return buildGenericResponse(protocolNumber, serial)
}

func buildGenericResponse(protocolNumber byte, serial uint16) []byte {
	body := []byte{
		0x05,
		protocolNumber,
		byte(serial >> 8),
		byte(serial),
	}
	out := make([]byte, 0, 2+1+4+2+2)
	out = append(out, byte(StartShort>>8), byte(StartShort&0xFF))
	out = append(out, body...)
	crc := CalculateCRC(body)
	out = append(out, byte(crc>>8), byte(crc))
	out = append(out, byte(Stop>>8), byte(Stop&0xFF))
	return out
}

// BuildCommandFrame encodes an outbound protocol-0x80 command frame.
// cmdASCII is the wire-form command text (e.g. "DYD#").
func BuildCommandFrame(cmdASCII []byte, serverFlag uint32, language uint16, serial uint16) []byte {
	cmdLen := 4 + len(cmdASCII) + 2
	packetLen := 1 + 1 + cmdLen + 2 + 2

	content := make([]byte, 0, packetLen)
	content = append(content, byte(packetLen))
	content = append(content, ProtoCommand)
	content = append(content, byte(cmdLen))
	content = append(content,
		byte(serverFlag>>24), byte(serverFlag>>16), byte(serverFlag>>8), byte(serverFlag))
	content = append(content, cmdASCII...)
	content = append(content, byte(language>>8), byte(language))
	content = append(content, byte(serial>>8), byte(serial))

	crc := CalculateCRC(content)

	out := make([]byte, 0, 2+len(content)+2+2)
	out = append(out, byte(StartShort>>8), byte(StartShort&0xFF))
	out = append(out, content...)
	out = append(out, byte(crc>>8), byte(crc))
	out = append(out, byte(Stop>>8), byte(Stop&0xFF))
	return out
}

// SerialCounter is the single, process-wide, atomic 16-bit serial number
// generator used for outbound command frames. Inbound
// acknowledgments never draw from this counter; they always echo the
// serial number of the frame being acknowledged.
type SerialCounter struct {
	v uint32
}

// Next returns the next serial number, wrapping from 0xFFFF back to 1.
func (c *SerialCounter) Next() uint16 {
	for {
		cur := atomic.LoadUint32(&c.v)
		next := cur + 1
		if next > 0xFFFF {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&c.v, cur, next) {
			return uint16(next)
		}
	}
}
