package banana

import (
	"bytes"
	"math/big"
	"testing"
)

func TestPutHeaderAndDecodeHeader(t *testing.T) {
	tests := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x00, 0x01}},
		{129, []byte{0x01, 0x01}},
		{1<<31 - 1, []byte{0x7f, 0x7f, 0x7f, 0x7f, 0x07}},
	}
	for _, tc := range tests {
		got := putHeader(nil, tc.v)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("putHeader(%d) = % x, want % x", tc.v, got, tc.want)
		}

		buf := append(append([]byte{}, got...), tInt)
		value, typ, consumed, ok, err := decodeHeader(buf)
		if err != nil {
			t.Fatalf("decodeHeader(% x): %v", buf, err)
		}
		if !ok {
			t.Fatalf("decodeHeader(% x): not ok", buf)
		}
		if value != tc.v || typ != tInt || consumed != len(buf) {
			t.Errorf("decodeHeader(% x) = %d, 0x%02x, %d; want %d, 0x%02x, %d",
				buf, value, typ, consumed, tc.v, tInt, len(buf))
		}
	}
}

func TestDecodeHeaderNeedsMore(t *testing.T) {
	// No terminator byte (high bit never set): must report NeedMore, not
	// an error, so the caller can wait for the rest of the stream.
	_, _, _, ok, err := decodeHeader([]byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("decodeHeader reported ok on a prefix with no terminator")
	}
}

func TestDecodeHeaderOverlongPrefix(t *testing.T) {
	buf := make([]byte, maxHeaderDigits+2)
	buf[len(buf)-1] = 0x80 // terminator, never reached
	_, _, _, _, err := decodeHeader(buf)
	if err == nil {
		t.Fatalf("expected an error for an overlong header prefix")
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name   string
		typ    byte
		header uint64
		body   []byte
		want   any
	}{
		{"int", tInt, 42, nil, int64(42)},
		{"neg", tNeg, 42, nil, int64(-42)},
		{"float", tFloat, 0, float64ToBytes(3.5), float64(3.5)},
		{"string", tString, 5, []byte("hello"), "hello"},
		{"longint", tLongint, 1, []byte{0xff}, big.NewInt(255)},
		{"longneg", tLongneg, 1, []byte{0xff}, big.NewInt(-255)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := decodeBody(tc.typ, tc.header, tc.body)
			if err != nil {
				t.Fatalf("decodeBody: %v", err)
			}
			switch want := tc.want.(type) {
			case *big.Int:
				got, ok := tok.value.(*big.Int)
				if !ok || got.Cmp(want) != 0 {
					t.Errorf("got %#v, want %v", tok.value, want)
				}
			default:
				if tok.value != tc.want {
					t.Errorf("got %#v, want %#v", tok.value, tc.want)
				}
			}
		})
	}
}

func TestDecodeBodyUnknownOpcode(t *testing.T) {
	_, err := decodeBody(0xff, 0, nil)
	oe, ok := err.(*OpcodeError)
	if !ok {
		t.Fatalf("expected *OpcodeError, got %T (%v)", err, err)
	}
	if oe.Type != 0xff {
		t.Errorf("OpcodeError.Type = 0x%02x, want 0xff", oe.Type)
	}
}

func TestDecodeBodyOversizedError(t *testing.T) {
	_, err := decodeBody(tError, SizeLimit+1, nil)
	if err == nil {
		t.Fatalf("expected an error for an oversized ERROR token")
	}
}

func TestEncodeTokenRoundTrip(t *testing.T) {
	buf := encodeToken(nil, tInt, 1234, nil)
	value, typ, consumed, ok, err := decodeHeader(buf)
	if err != nil || !ok {
		t.Fatalf("decodeHeader: ok=%v err=%v", ok, err)
	}
	if value != 1234 || typ != tInt || consumed != len(buf) {
		t.Fatalf("got %d, 0x%02x, %d; want 1234, 0x%02x, %d", value, typ, consumed, tInt, len(buf))
	}
}
