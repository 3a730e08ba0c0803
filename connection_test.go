package mysql

import (
	"net"
	"testing"
	"time"
)

// mockConn is a minimal net.Conn double: all bytes the fake server will
// ever send are queued up front, and writes are merely recorded. This
// mirrors the teacher's own packets_test.go mockConn, adapted for a
// connection that reads non-blockingly (no data queued yet is reported
// as a zero-byte, no-error read rather than a blocking wait).
type mockConn struct {
	toRead  []byte
	written []byte
	closed  bool
}

func (m *mockConn) Read(b []byte) (int, error) {
	if m.closed {
		return 0, net.ErrClosed
	}
	n := copy(b, m.toRead)
	m.toRead = m.toRead[n:]
	return n, nil
}

func (m *mockConn) Write(b []byte) (int, error) {
	if m.closed {
		return 0, net.ErrClosed
	}
	m.written = append(m.written, b...)
	return len(b), nil
}

func (m *mockConn) Close() error                       { m.closed = true; return nil }
func (m *mockConn) LocalAddr() net.Addr                 { return fakeAddr{} }
func (m *mockConn) RemoteAddr() net.Addr                { return fakeAddr{} }
func (m *mockConn) SetDeadline(t time.Time) error       { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error   { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error  { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "mock" }

// newTestConnection builds a Connection already past the dial step,
// wired directly to conn, for exercising the handshake/auth/command
// state machine without a real socket.
func newTestConnection(cfg *Config, conn net.Conn) *Connection {
	c := NewConnection(cfg)
	c.transport = &transport{conn: conn}
	c.frame = newFrameIO(false)
	c.state = stateWaitHandshake
	return c
}

func rawPacket(seq byte, payload []byte) []byte {
	out := putUint24(nil, uint32(len(payload)))
	out = append(out, seq)
	return append(out, payload...)
}

const testServerCaps = capability(0x2EA209) // LongPassword|Protocol41|SecureConnection|PluginAuth|PluginAuthLenencClientData|Transactions|MultiResults|PSMultiResults|ConnectWithDB

func buildHandshakePacket(scramble []byte) []byte {
	var p []byte
	p = append(p, 10) // protocol version
	p = append(p, []byte("5.7.44-test")...)
	p = append(p, 0)
	p = putUint32(p, 1) // thread id
	p = append(p, scramble[:8]...)
	p = append(p, 0) // filler
	p = putUint16(p, uint16(testServerCaps&0xffff))
	p = append(p, 0x21) // charset
	p = putUint16(p, uint16(statusAutocommit))
	p = putUint16(p, uint16(testServerCaps>>16))
	p = append(p, 21) // auth plugin data len (8+13)
	p = append(p, make([]byte, 10)...)
	p = append(p, scramble[8:20]...)
	p = append(p, 0) // trailing NUL of part 2
	p = append(p, []byte("mysql_native_password")...)
	p = append(p, 0)
	return p
}

func buildOKPacket(seq byte) []byte {
	var p []byte
	p = append(p, headerOK)
	p = append(p, 0) // affected rows = 0
	p = append(p, 0) // last insert id = 0
	p = putUint16(p, uint16(statusAutocommit))
	p = putUint16(p, 0) // warnings
	return rawPacket(seq, p)
}

func buildColumnDefPacket(seq byte, name string) []byte {
	var p []byte
	p = putLengthEncodedString(p, []byte("def"))
	p = putLengthEncodedString(p, nil)
	p = putLengthEncodedString(p, nil)
	p = putLengthEncodedString(p, nil)
	p = putLengthEncodedString(p, []byte(name))
	p = putLengthEncodedString(p, nil)
	p = append(p, 0x0c)
	p = putUint16(p, 0x3f) // charset: binary
	p = putUint32(p, 1)    // column length
	p = append(p, byte(TypeLongLong))
	p = putUint16(p, 0) // flags
	p = append(p, 0)    // decimals
	p = append(p, 0, 0) // filler
	return rawPacket(seq, p)
}

func buildEOFPacket(seq byte) []byte {
	p := []byte{headerEOF, 0, 0, byte(statusAutocommit), 0}
	return rawPacket(seq, p)
}

func buildTextRowPacket(seq byte, values ...string) []byte {
	var p []byte
	for _, v := range values {
		p = putLengthEncodedString(p, []byte(v))
	}
	return rawPacket(seq, p)
}

func pollDrain(t *testing.T, c *Connection, want PollResult, maxIters int) {
	t.Helper()
	for i := 0; i < maxIters; i++ {
		res, err := c.Poll()
		if err != nil {
			t.Fatalf("Poll error: %v", err)
		}
		if res == want {
			return
		}
	}
	t.Fatalf("did not reach %v within %d polls", want, maxIters)
}

func scrambleFor(t *testing.T) []byte {
	s := make([]byte, 20)
	for i := range s {
		s[i] = byte(i + 1)
	}
	return s
}

func TestConnectionHandshakeAndAuth(t *testing.T) {
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)
	mc.toRead = append(mc.toRead, buildOKPacket(2)...)

	cfg := &Config{User: "root", Passwd: "secret", DBName: "test"}
	c := newTestConnection(cfg, mc)

	pollDrain(t, c, PollIdle, 10)

	if c.state != stateIdle {
		t.Fatalf("expected stateIdle, got %v", c.state)
	}
	if c.ThreadID != 1 {
		t.Fatalf("expected thread id 1, got %d", c.ThreadID)
	}
	if len(mc.written) == 0 {
		t.Fatal("expected a handshake response to have been written")
	}
}

func TestConnectionQuerySelectOne(t *testing.T) {
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)
	mc.toRead = append(mc.toRead, buildOKPacket(2)...)

	cfg := &Config{User: "root", Passwd: "secret"}
	c := newTestConnection(cfg, mc)
	pollDrain(t, c, PollIdle, 10)

	// Queue the query response: 1 column, 1 column def, EOF, 1 row, EOF.
	// The COM_QUERY itself goes out as sequence 0, so replies start at 1.
	mc.toRead = append(mc.toRead, rawPacket(1, []byte{1})...)
	mc.toRead = append(mc.toRead, buildColumnDefPacket(2, "1")...)
	mc.toRead = append(mc.toRead, buildEOFPacket(3)...)
	mc.toRead = append(mc.toRead, buildTextRowPacket(4, "1")...)
	mc.toRead = append(mc.toRead, buildEOFPacket(5)...)

	if err := c.Query("SELECT 1"); err != nil {
		t.Fatal(err)
	}

	pollDrain(t, c, PollRowReady, 10)
	val, isNull, err := c.result.GetChar(0)
	if err != nil || isNull {
		t.Fatalf("GetChar(0) = %q isNull=%v err=%v", val, isNull, err)
	}
	if val != "1" {
		t.Fatalf("got %q, want %q", val, "1")
	}

	pollDrain(t, c, PollEOF, 10)
	if c.state != stateIdle {
		t.Fatalf("expected stateIdle after result set, got %v", c.state)
	}
}

func TestConnectionPing(t *testing.T) {
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)
	mc.toRead = append(mc.toRead, buildOKPacket(2)...)

	cfg := &Config{User: "root", Passwd: "secret"}
	c := newTestConnection(cfg, mc)
	pollDrain(t, c, PollIdle, 10)

	mc.toRead = append(mc.toRead, buildOKPacket(1)...)
	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
	pollDrain(t, c, PollEOF, 10)
	if c.state != stateIdle {
		t.Fatalf("expected stateIdle after ping, got %v", c.state)
	}
}

func TestConnectionServerErrorDuringAuth(t *testing.T) {
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)

	errPayload := []byte{headerERR}
	errPayload = putUint16(errPayload, 1045)
	errPayload = append(errPayload, []byte("#28000Access denied")...)
	mc.toRead = append(mc.toRead, rawPacket(2, errPayload)...)

	cfg := &Config{User: "root", Passwd: "wrong"}
	c := newTestConnection(cfg, mc)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, err := c.Poll()
		if err != nil {
			lastErr = err
			break
		}
	}
	mysqlErr, ok := lastErr.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", lastErr, lastErr)
	}
	if mysqlErr.Code != 1045 || mysqlErr.SQLState != "28000" {
		t.Fatalf("got code=%d sqlstate=%s", mysqlErr.Code, mysqlErr.SQLState)
	}
}

func TestConnectionBusyRejectsConcurrentCommand(t *testing.T) {
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)
	mc.toRead = append(mc.toRead, buildOKPacket(2)...)

	cfg := &Config{User: "root", Passwd: "secret"}
	c := newTestConnection(cfg, mc)
	pollDrain(t, c, PollIdle, 10)

	mc.toRead = append(mc.toRead, rawPacket(0, []byte{0})...) // never consumed
	if err := c.Query("SELECT 1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Ping(); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}
