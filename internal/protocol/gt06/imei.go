package gt06

import "fmt"

// DecodeIMEI decodes 8 packed-BCD bytes (two decimal digits per byte, high
// nibble first) into the canonical 15-digit IMEI string.
//
// A leading '0' is stripped when the decoded string is 16 digits. 0xF
// nibbles are treated as padding and dropped. Any other non-decimal nibble
// is a malformed IMEI.
func DecodeIMEI(bcd []byte) (string, error) {
	if len(bcd) != 8 {
		return "", fmt.Errorf("%w: expected 8 BCD bytes, got %d", ErrInvalidIMEI, len(bcd))
	}

	digits := make([]byte, 0, 16)
	for _, b := range bcd {
		hi := b >> 4
		lo := b & 0x0F
		for _, nibble := range [2]byte{hi, lo} {
			switch {
			case nibble <= 9:
				digits = append(digits, '0'+nibble)
			case nibble == 0xF:
				// padding, skip
			default:
				return "", fmt.Errorf("%w: invalid nibble 0x%X", ErrInvalidIMEI, nibble)
			}
		}
	}

	if len(digits) == 16 && digits[0] == '0' {
		digits = digits[1:]
	}

	if len(digits) != 15 {
		return "", fmt.Errorf("%w: decoded %d digits, want 15", ErrInvalidIMEI, len(digits))
	}

	return string(digits), nil
}

// EncodeIMEI packs a canonical 15-digit IMEI back into 8 BCD bytes, padding
// the leading nibble with 0 to restore the 16-digit form the wire format
// expects. It is the left inverse of DecodeIMEI for all valid IMEIs
// produced without 0xF padding.
func EncodeIMEI(imei string) ([]byte, error) {
	if len(imei) != 15 {
		return nil, fmt.Errorf("%w: imei must be 15 digits, got %d", ErrInvalidIMEI, len(imei))
	}
	for _, c := range imei {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: non-decimal character %q", ErrInvalidIMEI, c)
		}
	}

	padded := "0" + imei
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		hi := padded[i*2] - '0'
		lo := padded[i*2+1] - '0'
		out[i] = hi<<4 | lo
	}
	return out, nil
}
