package gt06

import "testing"

func TestEncodeDecodeIMEI_RoundTrip(t *testing.T) {
	imeis := []string{
		"351011123456789",
		"863719045678901",
		"000000000000001",
		"999999999999999",
	}
	for _, imei := range imeis {
		t.Run(imei, func(t *testing.T) {
			bcd, err := EncodeIMEI(imei)
			if err != nil {
				t.Fatalf("EncodeIMEI(%q): %v", imei, err)
			}
			if len(bcd) != 8 {
				t.Fatalf("EncodeIMEI(%q) returned %d bytes, want 8", imei, len(bcd))
			}
			got, err := DecodeIMEI(bcd)
			if err != nil {
				t.Fatalf("DecodeIMEI round-trip for %q: %v", imei, err)
			}
			if got != imei {
				t.Fatalf("round-trip mismatch: got %q, want %q", got, imei)
			}
		})
	}
}

func TestDecodeIMEI_PaddingNibbleSkipped(t *testing.T) {
	// Trailing 0xF nibble is padding, not a digit.
	bcd := []byte{0x03, 0x51, 0x01, 0x11, 0x23, 0x45, 0x67, 0x8F}
	got, err := DecodeIMEI(bcd)
	if err != nil {
		t.Fatalf("DecodeIMEI: %v", err)
	}
	want := "035101112345678"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeIMEI_LeadingZeroStrippedAt16Digits(t *testing.T) {
	// All 16 nibbles are valid decimal digits; the leading digit must be
	// stripped to recover the canonical 15-digit IMEI.
	bcd := []byte{0x03, 0x51, 0x01, 0x11, 0x23, 0x45, 0x67, 0x89}
	got, err := DecodeIMEI(bcd)
	if err != nil {
		t.Fatalf("DecodeIMEI: %v", err)
	}
	want := "351011123456789"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeIMEI_WrongLength(t *testing.T) {
	_, err := DecodeIMEI([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected error for short BCD input")
	}
}

func TestDecodeIMEI_InvalidNibble(t *testing.T) {
	bcd := []byte{0x03, 0x51, 0x01, 0x11, 0x12, 0x34, 0x56, 0xAB}
	_, err := DecodeIMEI(bcd)
	if err == nil {
		t.Fatal("expected error for non-decimal, non-padding nibble")
	}
}

func TestEncodeIMEI_RejectsWrongLength(t *testing.T) {
	_, err := EncodeIMEI("12345")
	if err == nil {
		t.Fatal("expected error for IMEI shorter than 15 digits")
	}
}

func TestEncodeIMEI_RejectsNonDigits(t *testing.T) {
	_, err := EncodeIMEI("35101112345678X")
	if err == nil {
		t.Fatal("expected error for non-decimal character")
	}
}
