package mysql

import (
	"encoding/binary"
	"math"
)

// This file implements the Wire Codec (spec.md §4.2): fixed-width
// little-endian integers, length-encoded integers/strings, the
// null-terminated string form and IEEE float conversions used
// throughout the handshake, text protocol and binary protocol.

// putUint24 appends the low 3 bytes of n, little-endian.
func putUint24(dst []byte, n uint32) []byte {
	return append(dst, byte(n), byte(n>>8), byte(n>>16))
}

func getUint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint32(dst []byte, n uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], n)
	return append(dst, b[:]...)
}

func putUint64(dst []byte, n uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return append(dst, b[:]...)
}

func putUint16(dst []byte, n uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], n)
	return append(dst, b[:]...)
}

// readLengthEncodedInteger decodes a MySQL length-encoded integer from
// the head of data. It returns the value, whether the leading byte was
// the NULL marker (0xfb, only meaningful in row-value context), and the
// number of bytes consumed. An error is returned if data is too short
// to hold the encoded width.
func readLengthEncodedInteger(data []byte) (num uint64, isNull bool, n int, err error) {
	if len(data) == 0 {
		return 0, false, 0, ErrMalformedPacket
	}
	switch data[0] {
	case 0xfb:
		return 0, true, 1, nil
	case 0xfc:
		if len(data) < 3 {
			return 0, false, 0, ErrMalformedPacket
		}
		return uint64(binary.LittleEndian.Uint16(data[1:3])), false, 3, nil
	case 0xfd:
		if len(data) < 4 {
			return 0, false, 0, ErrMalformedPacket
		}
		return uint64(getUint24(data[1:4])), false, 4, nil
	case 0xfe:
		if len(data) < 9 {
			return 0, false, 0, ErrMalformedPacket
		}
		return binary.LittleEndian.Uint64(data[1:9]), false, 9, nil
	default:
		return uint64(data[0]), false, 1, nil
	}
}

// putLengthEncodedInteger appends the length-encoded form of n.
func putLengthEncodedInteger(dst []byte, n uint64) []byte {
	switch {
	case n <= 250:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfc)
		return putUint16(dst, uint16(n))
	case n <= 0xffffff:
		dst = append(dst, 0xfd)
		return putUint24(dst, uint32(n))
	default:
		dst = append(dst, 0xfe)
		return putUint64(dst, n)
	}
}

// readLengthEncodedString reads a length-encoded integer followed by
// that many bytes. The returned slice aliases data. isNull is true when
// the value was the NULL marker.
func readLengthEncodedString(data []byte) (s []byte, isNull bool, n int, err error) {
	num, isNull, n, err := readLengthEncodedInteger(data)
	if err != nil || isNull {
		return nil, isNull, n, err
	}
	if uint64(len(data)-n) < num {
		return nil, false, n, ErrMalformedPacket
	}
	return data[n : n+int(num)], false, n + int(num), nil
}

// skipLengthEncodedString returns the number of bytes a length-encoded
// string at the head of data occupies, without copying it out.
func skipLengthEncodedString(data []byte) (n int, err error) {
	num, isNull, n, err := readLengthEncodedInteger(data)
	if err != nil {
		return 0, err
	}
	if isNull {
		return n, nil
	}
	if uint64(len(data)-n) < num {
		return 0, ErrMalformedPacket
	}
	return n + int(num), nil
}

func putLengthEncodedString(dst []byte, s []byte) []byte {
	dst = putLengthEncodedInteger(dst, uint64(len(s)))
	return append(dst, s...)
}

// readNullTerminatedString returns the bytes up to (excluding) the next
// NUL, and the number of bytes consumed including the terminator.
func readNullTerminatedString(data []byte) (s []byte, n int, err error) {
	for i, b := range data {
		if b == 0 {
			return data[:i], i + 1, nil
		}
	}
	return nil, 0, ErrMalformedPacket
}

func float32ToBytes(f float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return b[:]
}

func float64ToBytes(f float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return b[:]
}

func bytesToFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func bytesToFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
