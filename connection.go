package mysql

import (
	"crypto/tls"
	"fmt"
)

// connState is the Session State Machine's state, per spec.md §4.4.
type connState int

const (
	stateNotConnected connState = iota
	stateConnecting
	stateWaitHandshake
	stateSSLHandshake
	stateAuthenticating
	stateIdle
	stateBusy
	stateClosed
)

// PollResult is the outcome of one Connection.Poll call, per spec.md
// §4.6's Poll Driver.
type PollResult int

const (
	// PollNone means Poll made no progress; the caller should wait for
	// the socket to become readable (or for a short timer) before
	// calling again.
	PollNone PollResult = iota
	// PollIdle means the connection finished whatever it was doing and
	// is ready to accept a new command.
	PollIdle
	// PollProcessing means a command is in flight but has not yet
	// produced a row or a final result.
	PollProcessing
	// PollRowReady means Result.CurrentRow (or Statement.result.CurrentRow)
	// holds a freshly decoded row.
	PollRowReady
	// PollEOF means the current result set (or command) has finished;
	// Result holds the final status/affected-rows/warning state.
	PollEOF
)

type cmdKind int

const (
	cmdNone cmdKind = iota
	cmdConnect
	cmdQuery
	cmdPing
	cmdPrepare
	cmdExecute
	cmdQuit
)

type cmdPhase int

const (
	phaseAwaitHeader cmdPhase = iota
	phaseParamDefs
	phaseParamEOF
	phaseColumnDefs
	phaseColumnEOF
	phaseRows
)

// Connection is a single, non-blocking, single-threaded MySQL/MariaDB
// session, per spec.md §3's Connection entity. All progress happens
// inside Poll; no method here blocks on I/O or spawns a goroutine of
// its own (the Transport and, when TLS is negotiated, the TLS bridge
// are the sole exceptions, documented in transport.go/tls.go).
type Connection struct {
	cfg *Config

	transport *transport
	frame     *frameIO

	state connState
	err   *Error

	// handshake/auth
	hs          *handshakeV10
	authPlugin  AuthPlugin
	authPwdSent bool
	serverCaps  capability
	clientCaps  capability
	ThreadID    uint32
	ServerVersion string

	// command in flight
	cmd          cmdKind
	phase        cmdPhase
	columnsWant  int
	columnsGot   int
	paramsWant   int
	paramsGot    int
	deprecateEOF bool

	result Result
	stmt   *Statement

	pendingWrite []byte // bytes still to flush to the transport
}

// NewConnection builds a Connection from cfg. Call Connect to begin.
func NewConnection(cfg *Config) *Connection {
	return &Connection{cfg: cfg}
}

// Connect begins the non-blocking connect sequence: DNS resolution +
// socket connect, to be driven to completion via Poll.
func (c *Connection) Connect() error {
	if c.state != stateNotConnected && c.state != stateClosed {
		return ErrBusy
	}
	host, port := c.cfg.hostPort()
	c.transport = newTransport(c.cfg.Protocol, host, port, c.cfg.Addr)
	c.transport.Start()
	c.state = stateConnecting
	c.cmd = cmdConnect
	return nil
}

// Poll drives the connection forward by at most one unit of I/O
// progress and returns what happened, per spec.md §4.6.
func (c *Connection) Poll() (PollResult, error) {
	switch c.state {
	case stateNotConnected, stateClosed:
		return PollNone, ErrNotConnected
	case stateConnecting:
		return c.pollConnecting()
	case stateSSLHandshake:
		return c.pollSSLHandshake()
	}

	if err := c.pumpIO(); err != nil {
		c.fail(err)
		return PollNone, err
	}

	for {
		payload, ok, err := c.frame.NextPacket()
		if err != nil {
			c.fail(err)
			return PollNone, err
		}
		if !ok {
			if c.state == stateIdle {
				return PollIdle, nil
			}
			return PollNone, nil
		}
		res, err := c.dispatch(payload)
		if err != nil {
			c.fail(err)
			return PollNone, err
		}
		if res != PollNone {
			return res, nil
		}
		// res == PollNone but a packet was consumed: loop to see if the
		// already-buffered input yields further progress without
		// returning to the caller.
	}
}

func (c *Connection) pollConnecting() (PollResult, error) {
	done, err := c.transport.PollConnect()
	if err != nil {
		c.fail(err)
		return PollNone, err
	}
	if !done {
		return PollNone, nil
	}
	c.frame = newFrameIO(false)
	c.state = stateWaitHandshake
	return PollProcessing, nil
}

// pumpIO reads whatever is available from the transport into the
// framer, and flushes any buffered outbound bytes.
func (c *Connection) pumpIO() error {
	if len(c.pendingWrite) > 0 {
		n, err := c.transport.Write(c.pendingWrite)
		if err != nil {
			return err
		}
		c.pendingWrite = c.pendingWrite[n:]
	}
	data, err := c.transport.ReadAvailable()
	if err != nil {
		return err
	}
	if len(data) > 0 {
		c.frame.Feed(data)
	}
	return nil
}

func (c *Connection) send(payload []byte) {
	c.pendingWrite = append(c.pendingWrite, c.frame.EncodePacket(payload)...)
}

func (c *Connection) fail(err error) {
	c.state = stateClosed
	if e, ok := err.(*Error); ok {
		c.err = e
	}
	errLog.Printf("connection fatal: %v", err)
}

// dispatch routes one freshly-framed packet according to the current
// state/command phase.
func (c *Connection) dispatch(payload []byte) (PollResult, error) {
	switch c.state {
	case stateWaitHandshake:
		return c.handleHandshake(payload)
	case stateAuthenticating:
		return c.handleAuthPacket(payload)
	case stateBusy:
		return c.handleCommandPacket(payload)
	default:
		return PollNone, ErrPacketsOutOfSync
	}
}

func (c *Connection) handleHandshake(payload []byte) (PollResult, error) {
	hs, err := parseHandshakeV10(payload)
	if err != nil {
		return PollNone, err
	}
	c.hs = hs
	c.ThreadID = hs.threadID
	c.ServerVersion = hs.serverVersion
	c.serverCaps = hs.capabilities

	c.clientCaps = clientCapabilities & c.serverCaps
	c.clientCaps |= capDeprecateEOF & c.serverCaps
	if c.cfg.DBName != "" {
		c.clientCaps |= capConnectWithDB & c.serverCaps
	}
	if c.cfg.Compress {
		c.clientCaps |= capCompress & c.serverCaps
	}
	wantTLS := c.cfg.TLS != "" && c.cfg.TLS != "false"
	if wantTLS {
		c.clientCaps |= capSSL & c.serverCaps
	}

	if wantTLS && c.clientCaps&capSSL != 0 {
		c.frame.ResetForCommand()
		c.send(buildSSLRequest(c.clientCaps, hs))
		c.state = stateSSLHandshake
		return PollProcessing, c.beginTLS()
	}
	return c.beginAuth()
}

func buildSSLRequest(caps capability, hs *handshakeV10) []byte {
	var buf []byte
	buf = putUint32(buf, uint32(caps))
	buf = putUint32(buf, maxPacketSize)
	buf = append(buf, hs.charset)
	buf = append(buf, make([]byte, 23)...)
	return buf
}

func (c *Connection) beginTLS() error {
	tlsCfg, _ := getTLSConfig(c.cfg.TLS)
	if tlsCfg == nil {
		tlsCfg = &tls.Config{InsecureSkipVerify: c.cfg.TLS == "skip-verify"}
	}
	host, _ := c.cfg.hostPort()
	return c.transport.UpgradeTLS(tlsCfg, host)
}

func (c *Connection) pollSSLHandshake() (PollResult, error) {
	done, err := c.transport.TLSHandshakeDone()
	if err != nil {
		return PollNone, err
	}
	if !done {
		return PollNone, nil
	}
	c.frame.compression = false // renegotiated below if requested
	return c.beginAuth()
}

// secureChannel reports whether the transport is encrypted (TLS) or
// otherwise immune to network eavesdropping (a UNIX socket), the
// condition plugins like mysql_clear_password gate cleartext
// transmission on.
func (c *Connection) secureChannel() bool {
	return (c.cfg.TLS != "" && c.cfg.TLS != "false") || c.cfg.Protocol == ProtocolUDS
}

func (c *Connection) applySecureChannel(plugin AuthPlugin) {
	if sec, ok := plugin.(interface{ SetSecureChannel(bool) }); ok {
		sec.SetSecureChannel(c.secureChannel())
	}
}

func (c *Connection) beginAuth() (PollResult, error) {
	plugin, err := newAuthPlugin(c.hs.authPlugin)
	if err != nil {
		return PollNone, err
	}
	c.applySecureChannel(plugin)
	c.authPlugin = plugin

	resp, _, err := plugin.Respond(c.hs.scramble, c.cfg.Passwd)
	if err != nil {
		return PollNone, err
	}
	body := buildHandshakeResponse41(c.clientCaps, c.hs.charset, c.cfg.User, plugin.Name(), resp, c.cfg.DBName)
	c.send(body)
	c.state = stateAuthenticating
	return PollProcessing, nil
}

func (c *Connection) handleAuthPacket(payload []byte) (PollResult, error) {
	switch payload[0] {
	case headerOK:
		c.finishOK(payload)
		if c.cfg.Compress && c.clientCaps&capCompress != 0 {
			c.frame.compression = true
		}
		c.deprecateEOF = c.clientCaps&capDeprecateEOF != 0
		c.state = stateIdle
		return PollIdle, nil
	case headerERR:
		return PollNone, decodeErrPacket(payload)
	case headerEOF: // AuthSwitchRequest, or (len==1) old-password fallback
		name, data, err := parseAuthSwitchRequest(payload, c.hs.scramble)
		if err != nil {
			return PollNone, err
		}
		plugin, err := newAuthPlugin(name)
		if err != nil {
			return PollNone, err
		}
		c.applySecureChannel(plugin)
		c.authPlugin = plugin
		resp, _, err := plugin.Respond(data, c.cfg.Passwd)
		if err != nil {
			return PollNone, err
		}
		c.send(buildAuthSwitchResponse(resp))
		return PollProcessing, nil
	default: // AuthMoreData (0x01) or a plugin-specific continuation
		resp, done, err := c.authPlugin.Respond(payload[1:], c.cfg.Passwd)
		if err != nil {
			return PollNone, err
		}
		if !done {
			c.send(resp)
		} else if len(resp) > 0 {
			c.send(resp)
		}
		return PollProcessing, nil
	}
}

func parseAuthSwitchRequest(data, initialScramble []byte) (name string, authData []byte, err error) {
	if len(data) == 1 {
		return "mysql_old_password", initialScramble, nil
	}
	nameBytes, n, err := readNullTerminatedString(data[1:])
	if err != nil {
		return "", nil, err
	}
	rest := data[1+n:]
	if len(rest) > 0 && rest[len(rest)-1] == 0 {
		rest = rest[:len(rest)-1]
	}
	return string(nameBytes), rest, nil
}

func (c *Connection) finishOK(payload []byte) {
	ok, _ := decodeOKPacket(payload, c.clientCaps)
	c.result.AffectedRows = ok.affectedRows
	c.result.LastInsertID = ok.lastInsertID
	c.result.ServerStatus = ok.statusFlags
	c.result.WarningCount = ok.warnings
	c.result.InfoMessage = ok.info
}

// Close issues COM_QUIT and tears down the transport. Best-effort: the
// caller is not required to Poll afterward.
func (c *Connection) Close() error {
	if c.state == stateClosed || c.state == stateNotConnected {
		return nil
	}
	if c.frame != nil {
		c.frame.ResetForCommand()
		c.send([]byte{byte(comQuit)})
		c.pumpIO()
	}
	c.state = stateClosed
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// LastError returns the most recent session-fatal error, if any.
func (c *Connection) LastError() *Error { return c.err }

func clientErrorf(code uint16, sqlstate, format string, args ...interface{}) *Error {
	return clientError(code, sqlstate, fmt.Sprintf(format, args...))
}
