package banana

import (
	"encoding/binary"
	"math"
	"math/big"
)

// bigIntToBytes renders the magnitude of b as a big-endian byte string,
// the wire body for LONGINT/LONGNEG (spec.md §4.1: "Arbitrary-precision
// integers... are transmitted big-endian magnitude, length given in the
// header"). The sign is carried by the token type (LONGINT vs LONGNEG),
// not by the body, so only the magnitude is encoded here.
//
// Grounded on banana.py's long_to_bytes, adapted to big.Int.Bytes which
// already returns an unsigned big-endian magnitude.
func bigIntToBytes(b *big.Int) []byte {
	mag := new(big.Int).Abs(b).Bytes()
	if len(mag) == 0 {
		return []byte{0}
	}
	return mag
}

// bytesToBigInt parses a big-endian magnitude body into a *big.Int,
// applying the sign implied by the token type. Grounded on
// banana.py's bytes_to_long combined with decodeLong in ogorek.go
// (og-rek's loadLong1, which also works from a big-endian magnitude).
func bytesToBigInt(body []byte, negative bool) *big.Int {
	v := new(big.Int).SetBytes(body)
	if negative {
		v.Neg(v)
	}
	return v
}

// float64ToBytes renders f as an 8-byte big-endian IEEE-754 double,
// mirroring og-rek's binFloat/encodeFloat (`struct.pack("!d", obj)` in
// banana.py).
func float64ToBytes(f float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return b[:]
}

func bytesToFloat64(body []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(body))
}

// fitsInt31NonNeg reports whether v fits in INT's 31-bit magnitude
// field; fitsInt31Neg below is the NEG counterpart. Together they draw
// the boundary spec.md §4.1 describes ("-2^31 fits NEG but not INT").
func fitsInt31NonNeg(v *big.Int) bool {
	return v.Sign() >= 0 && v.BitLen() <= 31
}

// neg31Bound is 2^31, the largest magnitude NEG can carry: -2^31 itself
// fits NEG (spec.md §4.1), so the comparison below must be <=, not a
// BitLen() check (BitLen(2^31) is 32, which would wrongly exclude it).
var neg31Bound = new(big.Int).Lsh(big.NewInt(1), 31)

func fitsInt31Neg(v *big.Int) bool {
	// magnitude of v (v is negative) must fit 31 bits, i.e. -2^31 <= v < 0
	if v.Sign() >= 0 {
		return false
	}
	mag := new(big.Int).Neg(v)
	return mag.Cmp(neg31Bound) <= 0
}
