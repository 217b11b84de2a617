package kvstore

// keys.go — typed key encodings.
//
// Every table key is ultimately a byte slice; the encodings here guarantee
// that the byte order of encoded keys matches the natural order of the typed
// values, so a cursor walks entries in numeric / lexicographic order.
//
// Int64 layout (8 bytes):
//
//	[ sign-flipped big-endian uint64 ]
//
// Flipping the sign bit maps the int64 range [-2^63, 2^63-1] onto the uint64
// range [0, 2^64-1] while preserving order, so negative keys sort strictly
// before non-negative ones.

import "encoding/binary"

// MaxKeySize is the largest encoded key the store accepts, in bytes.
// Oversized keys fail with ErrKeySizeExceeded before any write occurs.
const MaxKeySize = 511

const signBit = uint64(1) << 63

// Int64Key encodes id as an 8-byte order-preserving key.
func Int64Key(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id)^signBit)
	return k[:]
}

// DecodeInt64Key reverses Int64Key. The key must be exactly 8 bytes;
// shorter input reports ok=false.
func DecodeInt64Key(k []byte) (int64, bool) {
	if len(k) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(k) ^ signBit), true
}

// StringKey encodes s as a key, enforcing the size ceiling.
func StringKey(s string) ([]byte, error) {
	k := []byte(s)
	if err := CheckKeySize(k); err != nil {
		return nil, err
	}
	return k, nil
}

// CheckKeySize validates that k fits within MaxKeySize. Zero-length keys are
// also rejected; the underlying store cannot address them.
func CheckKeySize(k []byte) error {
	if len(k) == 0 || len(k) > MaxKeySize {
		return ErrKeySizeExceeded
	}
	return nil
}
