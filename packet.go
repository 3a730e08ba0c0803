package mysql

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// This file implements the Packet Framer (spec.md §4.1): the 3-byte
// length + 1-byte sequence header around every MySQL packet, transparent
// rejoining/splitting of payloads that straddle the 2^24-1 byte
// continuation boundary, and — when CLIENT_COMPRESS was negotiated — the
// outer compressed-packet envelope wrapping that stream, grounded on the
// teacher's packets.go (plain framing) and compress.go (zlib envelope).

const minCompressLength = 50

// frameIO owns both sequence counters (plain and compressed) and the two
// buffers data passes through: rawIn holds bytes exactly as they arrive
// off the wire, plainIn holds the logical (post-decompression) packet
// stream the Session State Machine reads payloads from.
type frameIO struct {
	compression bool

	seq     uint8
	compSeq uint8

	rawIn   *growBuffer
	plainIn *growBuffer

	assembling []byte // payload accumulated across 0xFFFFFF continuation packets
}

func newFrameIO(compression bool) *frameIO {
	return &frameIO{
		compression: compression,
		rawIn:       newGrowBuffer(),
		plainIn:     newGrowBuffer(),
	}
}

// Feed appends newly read transport bytes to the framer's input.
func (f *frameIO) Feed(data []byte) {
	f.rawIn.Append(data)
}

// ResetForCommand resets both sequence counters to zero, as required at
// the start of every client command (spec.md §4.1).
func (f *frameIO) ResetForCommand() {
	f.seq = 0
	f.compSeq = 0
}

// NextPacket attempts to extract one complete, rejoined payload from
// the buffered input without blocking. ok is false when more bytes are
// needed; err is non-nil only for a fatal framing problem (bad
// sequence, malformed length, decompression failure).
func (f *frameIO) NextPacket() (payload []byte, ok bool, err error) {
	if f.compression {
		if err := f.pumpDecompress(); err != nil {
			return nil, false, err
		}
	} else {
		// Uncompressed: the logical stream is exactly the raw stream.
		if f.rawIn.Len() > 0 {
			b, _ := f.rawIn.Peek(f.rawIn.Len())
			f.plainIn.Append(b)
			f.rawIn.Consume(len(b))
		}
	}

	for {
		header, ok := f.plainIn.Peek(4)
		if !ok {
			return nil, false, nil
		}
		length := getUint24(header[0:3])
		gotSeq := header[3]
		if gotSeq != f.seq {
			return nil, false, ErrPacketsOutOfSync
		}
		body, ok := f.plainIn.Peek(4 + int(length))
		if !ok {
			return nil, false, nil
		}
		f.plainIn.Consume(4 + int(length))
		f.seq++

		f.assembling = append(f.assembling, body[4:]...)
		if length < maxPacketSize {
			payload = f.assembling
			f.assembling = nil
			return payload, true, nil
		}
		// length == maxPacketSize: a continuation packet follows, even
		// if it ends up carrying zero bytes.
	}
}

// pumpDecompress decompresses as many complete compressed envelopes as
// are currently buffered in rawIn into plainIn.
func (f *frameIO) pumpDecompress() error {
	for {
		header, ok := f.rawIn.Peek(7)
		if !ok {
			return nil
		}
		comprLength := int(getUint24(header[0:3]))
		seq := header[3]
		uncompressedLength := int(getUint24(header[4:7]))

		full, ok := f.rawIn.Peek(7 + comprLength)
		if !ok {
			return nil
		}
		if seq != f.compSeq {
			return ErrPacketsOutOfSync
		}
		f.compSeq++
		comprData := full[7:]
		f.rawIn.Consume(7 + comprLength)

		if uncompressedLength == 0 {
			f.plainIn.Append(comprData)
			continue
		}
		plain, err := zInflate(comprData, uncompressedLength)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCompressionFailed, err)
		}
		f.plainIn.Append(plain)
	}
}

func zInflate(src []byte, uncompressedLength int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	dst := make([]byte, uncompressedLength)
	n, err := io.ReadFull(zr, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n != uncompressedLength {
		return nil, fmt.Errorf("expected %d uncompressed bytes, got %d", uncompressedLength, n)
	}
	return dst, nil
}

func zDeflate(src []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(src)
	zw.Close()
	return buf.Bytes()
}

// EncodePacket frames payload as one or more plain MySQL packets
// (splitting at the 0xFFFFFF boundary), then — when compression is
// negotiated — wraps the result in the compressed envelope. The
// returned bytes are ready to hand to the Transport.
func (f *frameIO) EncodePacket(payload []byte) []byte {
	plain := f.encodePlain(payload)
	if !f.compression {
		return plain
	}
	return f.encodeCompressed(plain)
}

func (f *frameIO) encodePlain(payload []byte) []byte {
	var out []byte
	for {
		chunk := payload
		if len(chunk) > maxPacketSize {
			chunk = chunk[:maxPacketSize]
		}
		out = putUint24(out, uint32(len(chunk)))
		out = append(out, f.seq)
		out = append(out, chunk...)
		f.seq++
		payload = payload[len(chunk):]
		if len(chunk) < maxPacketSize {
			break
		}
		if len(payload) == 0 {
			// exact multiple of the threshold: an empty packet signals
			// the end, per spec.md §4.1.
			out = putUint24(out, 0)
			out = append(out, f.seq)
			f.seq++
			break
		}
	}
	return out
}

const maxCompressedPayload = maxPacketSize - 4

func (f *frameIO) encodeCompressed(plain []byte) []byte {
	var out []byte
	for len(plain) > 0 {
		n := len(plain)
		if n > maxCompressedPayload {
			n = maxCompressedPayload
		}
		chunk := plain[:n]
		plain = plain[n:]

		var body []byte
		uncompressedLen := 0
		if len(chunk) < minCompressLength {
			body = chunk
		} else {
			body = zDeflate(chunk)
			uncompressedLen = len(chunk)
		}

		out = putUint24(out, uint32(len(body)))
		out = append(out, f.compSeq)
		out = putUint24(out, uint32(uncompressedLen))
		out = append(out, body...)
		f.compSeq++
	}
	return out
}
