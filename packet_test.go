package mysql

import (
	"bytes"
	"testing"
)

func TestFrameIOEncodeDecodeSinglePacket(t *testing.T) {
	f := newFrameIO(false)
	encoded := f.EncodePacket([]byte("select 1"))

	f2 := newFrameIO(false)
	f2.Feed(encoded)
	payload, ok, err := f2.NextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a complete packet")
	}
	if !bytes.Equal(payload, []byte("select 1")) {
		t.Fatalf("got %q", payload)
	}
}

func TestFrameIONextPacketWaitsForMoreData(t *testing.T) {
	f := newFrameIO(false)
	encoded := f.EncodePacket([]byte("hello"))

	f2 := newFrameIO(false)
	f2.Feed(encoded[:len(encoded)-1])
	_, ok, err := f2.NextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected incomplete packet to report not-ok")
	}

	f2.Feed(encoded[len(encoded)-1:])
	payload, ok, err := f2.NextPacket()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if string(payload) != "hello" {
		t.Fatalf("got %q", payload)
	}
}

func TestFrameIOSplitsAtContinuationBoundary(t *testing.T) {
	f := newFrameIO(false)
	big := bytes.Repeat([]byte("x"), maxPacketSize+100)
	encoded := f.EncodePacket(big)

	// A packet at exactly maxPacketSize must be followed by a
	// continuation packet, even though the remainder is small.
	firstLen := getUint24(encoded[0:3])
	if int(firstLen) != maxPacketSize {
		t.Fatalf("first chunk length = %d, want %d", firstLen, maxPacketSize)
	}

	f2 := newFrameIO(false)
	f2.Feed(encoded)
	payload, ok, err := f2.NextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected reassembled packet")
	}
	if !bytes.Equal(payload, big) {
		t.Fatalf("reassembled payload length %d, want %d", len(payload), len(big))
	}
}

func TestFrameIOSequenceMismatchIsFatal(t *testing.T) {
	f2 := newFrameIO(false)
	// Header claims sequence 5 when 0 is expected.
	f2.Feed([]byte{0x01, 0x00, 0x00, 0x05, 0xAA})
	_, _, err := f2.NextPacket()
	if err != ErrPacketsOutOfSync {
		t.Fatalf("got %v, want ErrPacketsOutOfSync", err)
	}
}

func TestFrameIOCompressedRoundTrip(t *testing.T) {
	f := newFrameIO(true)
	payload := bytes.Repeat([]byte("compress me please "), 10) // > minCompressLength
	encoded := f.EncodePacket(payload)

	f2 := newFrameIO(true)
	f2.Feed(encoded)
	got, ok, err := f2.NextPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected complete packet")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
}

func TestFrameIOCompressedSmallPacketStoredUncompressed(t *testing.T) {
	f := newFrameIO(true)
	payload := []byte("tiny")
	encoded := f.EncodePacket(payload)
	uncompressedLen := getUint24(encoded[4:7])
	if uncompressedLen != 0 {
		t.Fatalf("expected uncompressed-length field 0 for a small packet, got %d", uncompressedLen)
	}

	f2 := newFrameIO(true)
	f2.Feed(encoded)
	got, ok, err := f2.NextPacket()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q", got)
	}
}

func TestFrameIOResetForCommand(t *testing.T) {
	f := newFrameIO(false)
	f.seq = 7
	f.compSeq = 3
	f.ResetForCommand()
	if f.seq != 0 || f.compSeq != 0 {
		t.Fatalf("seq=%d compSeq=%d after reset, want 0,0", f.seq, f.compSeq)
	}
}
