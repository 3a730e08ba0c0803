package mysql

import (
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"time"
)

// This file implements the Transport (spec.md §4.3). spec.md §1 treats
// "the event-loop primitive" — non-blocking sockets with
// readable/writable callbacks and a DNS resolver — as an external
// collaborator assumed available to the core. The standard library has
// no such primitive: net.Dial and net.Resolver both block the calling
// goroutine. Transport is the adapter that plays that external role
// concretely: a small, bounded, one-shot goroutine performs the
// DNS-resolve-then-connect step and reports back over a channel, which
// Poll checks non-blockingly. Once connected, all reads and writes go
// through SetReadDeadline/SetWriteDeadline with an already-elapsed
// deadline — the standard non-blocking-read idiom for net.Conn — so no
// further goroutines are used. The Session State Machine, Prepared
// Statement Engine and Poll Driver built on top of this stay strictly
// synchronous and goroutine-free per spec.md §5; only this leaf and the
// TLS bridge in tls.go take on the adapter role.
type transport struct {
	protocol Protocol
	host     string
	port     int
	sockPath string

	conn       net.Conn
	connecting bool
	connectCh  chan connectOutcome

	tls *tlsBridge
}

type connectOutcome struct {
	conn net.Conn
	err  error
}

func newTransport(protocol Protocol, host string, port int, sockPath string) *transport {
	return &transport{protocol: protocol, host: host, port: port, sockPath: sockPath}
}

// Start kicks off DNS resolution (for TCP) and connection in the
// background adapter goroutine described above.
func (t *transport) Start() {
	network, addr := t.dialTarget()
	t.connecting = true
	t.connectCh = make(chan connectOutcome, 1)
	go func() {
		c, err := net.DialTimeout(network, addr, 10*time.Second)
		t.connectCh <- connectOutcome{conn: c, err: err}
	}()
}

// dialTarget resolves the protocol option into a net.Dial network/addr
// pair, applying the "auto" rule from spec.md §4.3: prefer a UNIX
// domain socket when the host is "localhost" and a default socket path
// exists, otherwise TCP.
func (t *transport) dialTarget() (network, addr string) {
	switch t.protocol {
	case ProtocolUDS:
		path := t.sockPath
		if path == "" {
			path = defaultUnixSocketPath
		}
		return "unix", path
	case ProtocolTCP:
		return "tcp", net.JoinHostPort(t.host, portString(t.port))
	default: // ProtocolAuto
		path := t.sockPath
		if path == "" {
			path = defaultUnixSocketPath
		}
		if (t.host == "" || t.host == "localhost") && socketExists(path) {
			return "unix", path
		}
		return "tcp", net.JoinHostPort(t.host, portString(t.port))
	}
}

func socketExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeSocket != 0
}

func portString(p int) string {
	if p == 0 {
		p = defaultTCPPort
	}
	return strconv.Itoa(p)
}

// PollConnect checks, without blocking, whether the background connect
// attempt has finished. done is false while still in flight.
func (t *transport) PollConnect() (done bool, err error) {
	if !t.connecting {
		return true, nil
	}
	select {
	case outcome := <-t.connectCh:
		t.connecting = false
		if outcome.err != nil {
			return true, clientError(codeCannotConnect, "HY000", outcome.err.Error())
		}
		t.conn = outcome.conn
		return true, nil
	default:
		return false, nil
	}
}

// pastDeadline is used to make a net.Conn read/write return immediately
// if no data/buffer space is ready, the standard idiom for adapting a
// blocking net.Conn to non-blocking use.
var pastDeadline = time.Unix(1, 0)

// ReadAvailable performs one non-blocking read attempt and returns
// whatever bytes were immediately available. A nil slice with a nil
// error means "no data right now" (try again on the next poll); a
// non-nil error is fatal.
func (t *transport) ReadAvailable() ([]byte, error) {
	conn := t.activeConn()
	if conn == nil {
		return nil, ErrNotConnected
	}
	conn.SetReadDeadline(pastDeadline)
	buf := make([]byte, 16384)
	n, err := conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nil, nil
	}
	return nil, clientError(codeServerGone, "HY000", err.Error())
}

// Write performs one non-blocking write attempt and returns how many
// bytes were accepted; callers must retry the remainder.
func (t *transport) Write(p []byte) (int, error) {
	conn := t.activeConn()
	if conn == nil {
		return 0, ErrNotConnected
	}
	conn.SetWriteDeadline(pastDeadline)
	n, err := conn.Write(p)
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, nil
	}
	return n, clientError(codeServerGone, "HY000", err.Error())
}

// activeConn returns the TLS bridge's application-facing conn once a
// TLS upgrade has been installed, otherwise the raw socket.
func (t *transport) activeConn() net.Conn {
	if t.tls != nil {
		return t.tls
	}
	return t.conn
}

// UpgradeTLS installs a TLS bridge in front of the raw socket; all
// subsequent ReadAvailable/Write calls go through it. Must be called
// only once, after the handshake-preceding plaintext packets have
// already been exchanged.
func (t *transport) UpgradeTLS(cfg *tls.Config, serverName string) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.tls = upgradeTLS(t.conn, cfg, serverName)
	return nil
}

// TLSHandshakeDone reports, without blocking, whether a prior
// UpgradeTLS call's handshake has finished.
func (t *transport) TLSHandshakeDone() (done bool, err error) {
	if t.tls == nil {
		return true, nil
	}
	return t.tls.HandshakeDone()
}

func (t *transport) Close() error {
	if t.tls != nil {
		t.tls.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
