package gt06

import "testing"

func buildFrame(protocolNumber byte, payload []byte, serial uint16) []byte {
	content := make([]byte, 0, 1+len(payload)+2)
	content = append(content, protocolNumber)
	content = append(content, payload...)
	content = append(content, byte(serial>>8), byte(serial))

	declared := len(content) + 2 // +2 for the trailing CRC

	out := make([]byte, 0, 2+1+declared+2)
	out = append(out, byte(StartShort>>8), byte(StartShort&0xFF))
	out = append(out, byte(declared))
	out = append(out, content...)
	crc := CalculateCRC(out[2:])
	out = append(out, byte(crc>>8), byte(crc))
	out = append(out, byte(Stop>>8), byte(Stop&0xFF))
	return out
}

func TestCodec_SingleFrame(t *testing.T) {
	frameBytes := buildFrame(ProtoLogin, []byte{0x03, 0x51, 0x01, 0x11, 0x23, 0x45, 0x67, 0x89}, 7)

	c := NewCodec()
	c.Feed(frameBytes)

	frame, ok, err := c.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected a complete frame")
	}
	if frame.ProtocolNumber != ProtoLogin {
		t.Fatalf("got protocol %02X, want %02X", frame.ProtocolNumber, ProtoLogin)
	}
	if frame.SerialNumber != 7 {
		t.Fatalf("got serial %d, want 7", frame.SerialNumber)
	}
	if len(frame.Payload) != 8 {
		t.Fatalf("got payload length %d, want 8", len(frame.Payload))
	}

	_, ok, err = c.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame after drain: %v", err)
	}
	if ok {
		t.Fatal("expected no more frames after single frame drained")
	}
}

func TestCodec_JunkBytesBeforeValidFrame(t *testing.T) {
	frameBytes := buildFrame(ProtoLogin, make([]byte, 8), 1)
	stream := append([]byte{0x00, 0xFF, 0x78, 0x12, 0xAB}, frameBytes...)

	c := NewCodec()
	c.Feed(stream)

	frame, ok, err := c.NextFrame()
	if err != nil || !ok {
		t.Fatalf("expected frame recovered past junk prefix, got ok=%v err=%v", ok, err)
	}
	if frame.ProtocolNumber != ProtoLogin {
		t.Fatalf("got protocol %02X, want %02X", frame.ProtocolNumber, ProtoLogin)
	}
}

func TestCodec_PartialFrameArrivesInPieces(t *testing.T) {
	frameBytes := buildFrame(ProtoStatus, []byte{0x04, 0x64, 0x03}, 42)

	c := NewCodec()
	for i, b := range frameBytes {
		c.Feed([]byte{b})
		frame, ok, err := c.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame at byte %d: %v", i, err)
		}
		if i < len(frameBytes)-1 {
			if ok {
				t.Fatalf("did not expect a complete frame until all %d bytes arrived, got one at byte %d", len(frameBytes), i)
			}
			continue
		}
		if !ok {
			t.Fatalf("expected complete frame once final byte arrived")
		}
		if frame.ProtocolNumber != ProtoStatus {
			t.Fatalf("got protocol %02X, want %02X", frame.ProtocolNumber, ProtoStatus)
		}
	}
}

func TestCodec_CRCMismatchDropsFrameAndResyncs(t *testing.T) {
	bad := buildFrame(ProtoLogin, make([]byte, 8), 1)
	bad[len(bad)-3] ^= 0xFF // corrupt a CRC byte

	good := buildFrame(ProtoStatus, []byte{0x04, 0x64, 0x03}, 2)

	c := NewCodec()
	c.Feed(bad)
	c.Feed(good)

	frame, ok, err := c.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected the resync to recover the good frame following the corrupt one")
	}
	if frame.ProtocolNumber != ProtoStatus {
		t.Fatalf("got protocol %02X, want %02X (corrupt frame should have been dropped)", frame.ProtocolNumber, ProtoStatus)
	}
}

func TestCodec_DeclaredLengthBelowMinimumResyncs(t *testing.T) {
	// Declared length of 0 is below minContentLength(5); the codec must
	// advance one byte and keep searching rather than getting stuck.
	malformed := []byte{0x78, 0x78, 0x00, 0x0D, 0x0A}
	good := buildFrame(ProtoLogin, make([]byte, 8), 9)

	c := NewCodec()
	c.Feed(malformed)
	c.Feed(good)

	frame, ok, err := c.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if !ok {
		t.Fatal("expected the malformed prefix to be skipped and the good frame recovered")
	}
	if frame.SerialNumber != 9 {
		t.Fatalf("got serial %d, want 9", frame.SerialNumber)
	}
}

func TestCodec_StartMarkerSplitAcrossFeeds(t *testing.T) {
	frameBytes := buildFrame(ProtoLogin, make([]byte, 8), 3)

	c := NewCodec()
	c.Feed(frameBytes[:1]) // just the first byte of the 0x7878 marker
	_, ok, err := c.NextFrame()
	if err != nil || ok {
		t.Fatalf("expected no frame yet, got ok=%v err=%v", ok, err)
	}

	c.Feed(frameBytes[1:])
	frame, ok, err := c.NextFrame()
	if err != nil || !ok {
		t.Fatalf("expected frame after remaining bytes arrived, got ok=%v err=%v", ok, err)
	}
	if frame.SerialNumber != 3 {
		t.Fatalf("got serial %d, want 3", frame.SerialNumber)
	}
}

func TestBuildLoginAck_RoundTrip(t *testing.T) {
	ackBytes := BuildLoginAck(5)

	c := NewCodec()
	c.Feed(ackBytes)
	frame, ok, err := c.NextFrame()
	if err != nil || !ok {
		t.Fatalf("expected valid login ack frame, got ok=%v err=%v", ok, err)
	}
	if frame.ProtocolNumber != ProtoLogin {
		t.Fatalf("got protocol %02X, want %02X", frame.ProtocolNumber, ProtoLogin)
	}
	if frame.SerialNumber != 5 {
		t.Fatalf("got serial %d, want 5", frame.SerialNumber)
	}
}

func TestBuildCommandFrame_RoundTrip(t *testing.T) {
	var counter SerialCounter
	serial := counter.Next()
	cmdBytes := BuildCommandFrame([]byte("RESET#"), 0, CommandLanguageEnglish, serial)

	c := NewCodec()
	c.Feed(cmdBytes)
	frame, ok, err := c.NextFrame()
	if err != nil || !ok {
		t.Fatalf("expected valid command frame, got ok=%v err=%v", ok, err)
	}
	if frame.ProtocolNumber != ProtoCommand {
		t.Fatalf("got protocol %02X, want %02X", frame.ProtocolNumber, ProtoCommand)
	}
	if frame.SerialNumber != serial {
		t.Fatalf("got serial %d, want %d", frame.SerialNumber, serial)
	}
}

func TestSerialCounter_WrapsAt0xFFFF(t *testing.T) {
	c := &SerialCounter{v: 0xFFFF}
	next := c.Next()
	if next != 1 {
		t.Fatalf("expected wrap to 1, got %d", next)
	}
}
