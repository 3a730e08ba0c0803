package mysql

// This file implements the Prepared Statement Engine and the COM_QUERY
// / COM_PING command paths (spec.md §4.5, §6), and the public API
// surface named there: Query, Ping, Prepare, Execute, SendLongData,
// StmtReset, StmtClose and RowGet (the typed getters are in
// getters.go). Grounded on the teacher's (old) packets.go
// readResultSetHeaderPacket/readColumns/readRow/readPrepareResultPacket,
// reworked from blocking synchronous reads into a phase-tagged resumable
// dispatch driven one packet at a time from Connection.Poll.

// Query issues a COM_QUERY for sql. The caller drives completion via
// Poll, reading Result().ColumnCount/Columns once available and
// Result().CurrentRow on each PollRowReady.
func (c *Connection) Query(sql string) error {
	if c.state != stateIdle {
		return ErrBusy
	}
	c.result.reset()
	c.frame.ResetForCommand()
	body := append([]byte{byte(comQuery)}, []byte(sql)...)
	c.send(body)
	c.cmd = cmdQuery
	c.phase = phaseAwaitHeader
	c.state = stateBusy
	return nil
}

// Ping issues COM_PING; the server always replies OK.
func (c *Connection) Ping() error {
	if c.state != stateIdle {
		return ErrBusy
	}
	c.frame.ResetForCommand()
	c.send([]byte{byte(comPing)})
	c.cmd = cmdPing
	c.phase = phaseAwaitHeader
	c.state = stateBusy
	return nil
}

// Prepare issues COM_STMT_PREPARE for sql. Preparing a new statement
// implicitly replaces (and, on the wire, does not need to explicitly
// close) any previous one tracked on this Connection, per spec.md §4.4.
func (c *Connection) Prepare(sql string) error {
	if c.state != stateIdle {
		return ErrBusy
	}
	c.frame.ResetForCommand()
	body := append([]byte{byte(comStmtPrepare)}, []byte(sql)...)
	c.send(body)
	c.stmt = &Statement{conn: c, State: StmtStatePrepare}
	c.cmd = cmdPrepare
	c.phase = phaseAwaitHeader
	c.state = stateBusy
	return nil
}

// Statement returns the most recently prepared statement, or nil.
func (c *Connection) Statement() *Statement { return c.stmt }

// Result exposes the result-set state of the current or most recent
// Query/Ping: columns, the current row and the final status.
func (c *Connection) Result() *Result { return &c.result }

// Execute issues COM_STMT_EXECUTE for the connection's current
// statement with its currently bound parameters.
func (c *Connection) Execute() error {
	if c.state != stateIdle {
		return ErrBusy
	}
	if c.stmt == nil {
		return ErrNoStatement
	}
	body, err := c.stmt.buildExecutePacket()
	if err != nil {
		return err
	}
	c.frame.ResetForCommand()
	c.send(body)
	for i := range c.stmt.params {
		c.stmt.params[i].locked = false
	}
	c.stmt.newBind = false
	c.stmt.result.reset()
	c.stmt.State = StmtStateExecute
	c.cmd = cmdExecute
	c.phase = phaseAwaitHeader
	c.state = stateBusy
	return nil
}

// SendLongData issues COM_STMT_SEND_LONG_DATA for param i on the
// current statement. This is fire-and-forget on the wire (the server
// sends no reply); the connection remains idle.
func (c *Connection) SendLongData(i int, chunk []byte) error {
	if c.state != stateIdle {
		return ErrBusy
	}
	if c.stmt == nil {
		return ErrNoStatement
	}
	if err := c.stmt.AppendLongData(i, chunk); err != nil {
		return err
	}
	c.frame.ResetForCommand()
	var body []byte
	body = append(body, byte(comStmtSendLongData))
	body = putUint32(body, c.stmt.id)
	body = putUint16(body, uint16(i))
	body = append(body, chunk...)
	c.send(body)
	return nil
}

// StmtReset issues COM_STMT_RESET, clearing bound parameters
// server-side; the local bindings are cleared immediately, before the
// server's reply arrives.
func (c *Connection) StmtReset() error {
	if c.state != stateIdle {
		return ErrBusy
	}
	if c.stmt == nil {
		return ErrNoStatement
	}
	c.frame.ResetForCommand()
	var body []byte
	body = append(body, byte(comStmtReset))
	body = putUint32(body, c.stmt.id)
	c.send(body)
	c.stmt.Reset()
	c.cmd = cmdPing // reuse the single-OK-reply path
	c.phase = phaseAwaitHeader
	c.state = stateBusy
	return nil
}

// StmtClose issues COM_STMT_CLOSE, which the server never replies to.
func (c *Connection) StmtClose() error {
	if c.state != stateIdle {
		return ErrBusy
	}
	if c.stmt == nil {
		return ErrNoStatement
	}
	c.frame.ResetForCommand()
	var body []byte
	body = append(body, byte(comStmtClose))
	body = putUint32(body, c.stmt.id)
	c.send(body)
	c.stmt = nil
	return nil
}

// handleCommandPacket dispatches one packet belonging to whatever
// command is currently in flight.
func (c *Connection) handleCommandPacket(payload []byte) (PollResult, error) {
	switch c.cmd {
	case cmdPing:
		return c.handlePingReply(payload)
	case cmdQuery:
		return c.handleQueryPacket(payload)
	case cmdPrepare:
		return c.handlePreparePacket(payload)
	case cmdExecute:
		return c.handleExecutePacket(payload)
	default:
		return PollNone, ErrPacketsOutOfSync
	}
}

func (c *Connection) handlePingReply(payload []byte) (PollResult, error) {
	switch payload[0] {
	case headerOK:
		c.finishOK(payload)
		c.state = stateIdle
		return PollEOF, nil
	case headerERR:
		return PollNone, decodeErrPacket(payload)
	default:
		return PollNone, ErrMalformedPacket
	}
}

func (c *Connection) handleQueryPacket(payload []byte) (PollResult, error) {
	switch c.phase {
	case phaseAwaitHeader:
		switch payload[0] {
		case headerOK:
			c.finishOK(payload)
			c.state = stateIdle
			return PollEOF, nil
		case headerERR:
			return PollNone, decodeErrPacket(payload)
		case headerLocalInfile:
			return PollNone, ErrMalformedPacket // LOCAL INFILE is out of scope
		default:
			count, _, _, err := readLengthEncodedInteger(payload)
			if err != nil {
				return PollNone, err
			}
			c.columnsWant = int(count)
			c.columnsGot = 0
			c.result.Columns = make([]Column, 0, c.columnsWant)
			c.result.ColumnCount = c.columnsWant
			if c.columnsWant == 0 {
				c.phase = phaseRows
			} else {
				c.phase = phaseColumnDefs
			}
			return PollProcessing, nil
		}
	case phaseColumnDefs:
		col, err := decodeColumnDefinition(payload)
		if err != nil {
			return PollNone, err
		}
		c.result.Columns = append(c.result.Columns, col)
		c.columnsGot++
		if c.columnsGot == c.columnsWant {
			c.result.EOFReached = true
			if c.deprecateEOF {
				c.phase = phaseRows
			} else {
				c.phase = phaseColumnEOF
			}
		}
		return PollProcessing, nil
	case phaseColumnEOF:
		if payload[0] != headerEOF {
			return PollNone, ErrMalformedPacket
		}
		c.phase = phaseRows
		return PollProcessing, nil
	case phaseRows:
		return c.handleRowPacket(payload, false)
	default:
		return PollNone, ErrPacketsOutOfSync
	}
}

// handleRowPacket decodes one text- or binary-protocol row, or detects
// the terminating EOF/OK marker. isBinary selects which decoder to use
// for an actual row payload.
func (c *Connection) handleRowPacket(payload []byte, isBinary bool) (PollResult, error) {
	res := &c.result
	cols := c.result.Columns
	if isBinary {
		res = &c.stmt.result
		cols = c.stmt.Columns
	}

	if len(payload) < 9 && payload[0] == headerEOF {
		warnings, status, err := decodeEOFPacket(payload)
		if err != nil {
			return PollNone, err
		}
		res.ServerStatus = status
		res.WarningCount = warnings
		c.state = stateIdle
		if isBinary {
			c.stmt.State = StmtStatePrepare
		}
		return PollEOF, nil
	}
	if payload[0] == headerERR {
		if isBinary {
			c.stmt.State = StmtStateError
		}
		return PollNone, decodeErrPacket(payload)
	}
	if c.deprecateEOF && payload[0] == headerOK {
		c.finishOKInto(res, payload)
		c.state = stateIdle
		if isBinary {
			c.stmt.State = StmtStatePrepare
		}
		return PollEOF, nil
	}

	var row [][]byte
	var err error
	if isBinary {
		row, err = decodeBinaryRow(payload, cols)
	} else {
		row, err = decodeTextRow(payload, len(cols))
	}
	if err != nil {
		if isBinary {
			c.stmt.State = StmtStateError
		}
		return PollNone, err
	}
	res.CurrentRow = row
	if isBinary {
		c.stmt.State = StmtStateFetch
	}
	return PollRowReady, nil
}

func (c *Connection) finishOKInto(res *Result, payload []byte) {
	ok, _ := decodeOKPacket(payload, c.clientCaps)
	res.AffectedRows = ok.affectedRows
	res.LastInsertID = ok.lastInsertID
	res.ServerStatus = ok.statusFlags
	res.WarningCount = ok.warnings
	res.InfoMessage = ok.info
}

func (c *Connection) handlePreparePacket(payload []byte) (PollResult, error) {
	switch c.phase {
	case phaseAwaitHeader:
		if payload[0] == headerERR {
			c.stmt = nil
			return PollNone, decodeErrPacket(payload)
		}
		if len(payload) < 12 || payload[0] != 0 {
			return PollNone, ErrMalformedPacket
		}
		c.stmt.id = uint32(payload[1]) | uint32(payload[2])<<8 | uint32(payload[3])<<16 | uint32(payload[4])<<24
		c.columnsWant = int(uint16(payload[5]) | uint16(payload[6])<<8)
		c.paramsWant = int(uint16(payload[7]) | uint16(payload[8])<<8)
		c.stmt.ParamCount = c.paramsWant
		c.stmt.params = make([]paramValue, c.paramsWant)
		c.stmt.newBind = true
		c.columnsGot, c.paramsGot = 0, 0

		if c.paramsWant > 0 {
			c.phase = phaseParamDefs
		} else if c.columnsWant > 0 {
			c.phase = phaseColumnDefs
		} else {
			return c.finishPrepare()
		}
		return PollProcessing, nil
	case phaseParamDefs:
		c.paramsGot++
		if c.paramsGot == c.paramsWant {
			if c.deprecateEOF {
				if c.columnsWant > 0 {
					c.phase = phaseColumnDefs
				} else {
					return c.finishPrepare()
				}
			} else {
				c.phase = phaseParamEOF
			}
		}
		return PollProcessing, nil
	case phaseParamEOF:
		if payload[0] != headerEOF {
			return PollNone, ErrMalformedPacket
		}
		if c.columnsWant > 0 {
			c.phase = phaseColumnDefs
		} else {
			return c.finishPrepare()
		}
		return PollProcessing, nil
	case phaseColumnDefs:
		col, err := decodeColumnDefinition(payload)
		if err != nil {
			return PollNone, err
		}
		c.stmt.Columns = append(c.stmt.Columns, col)
		c.columnsGot++
		if c.columnsGot == c.columnsWant {
			if c.deprecateEOF {
				return c.finishPrepare()
			}
			c.phase = phaseColumnEOF
		}
		return PollProcessing, nil
	case phaseColumnEOF:
		if payload[0] != headerEOF {
			return PollNone, ErrMalformedPacket
		}
		return c.finishPrepare()
	default:
		return PollNone, ErrPacketsOutOfSync
	}
}

func (c *Connection) finishPrepare() (PollResult, error) {
	c.stmt.State = StmtStatePrepare
	c.state = stateIdle
	return PollEOF, nil
}

func (c *Connection) handleExecutePacket(payload []byte) (PollResult, error) {
	switch c.phase {
	case phaseAwaitHeader:
		switch payload[0] {
		case headerOK:
			c.finishOKInto(&c.stmt.result, payload)
			c.state = stateIdle
			c.stmt.State = StmtStatePrepare
			return PollEOF, nil
		case headerERR:
			c.stmt.State = StmtStateError
			return PollNone, decodeErrPacket(payload)
		default:
			count, _, _, err := readLengthEncodedInteger(payload)
			if err != nil {
				return PollNone, err
			}
			c.columnsWant = int(count)
			c.columnsGot = 0
			c.stmt.result.ColumnCount = c.columnsWant
			if c.columnsWant == 0 {
				c.phase = phaseRows
			} else {
				// Execute reuses the statement's already-known column
				// definitions from Prepare; the server resends them here
				// too, but we only need to advance past them.
				c.phase = phaseColumnDefs
			}
			return PollProcessing, nil
		}
	case phaseColumnDefs:
		c.columnsGot++
		if c.columnsGot == c.columnsWant {
			if c.deprecateEOF {
				c.phase = phaseRows
			} else {
				c.phase = phaseColumnEOF
			}
		}
		return PollProcessing, nil
	case phaseColumnEOF:
		if payload[0] != headerEOF {
			return PollNone, ErrMalformedPacket
		}
		c.phase = phaseRows
		return PollProcessing, nil
	case phaseRows:
		return c.handleRowPacket(payload, true)
	default:
		return PollNone, ErrPacketsOutOfSync
	}
}

// RowGet returns the last row decoded for the connection's plain
// Result (the Query path). ok is false until a PollRowReady outcome
// has produced one.
func (r *Result) RowGet() (row [][]byte, ok bool) {
	return r.CurrentRow, r.CurrentRow != nil
}

// RowGet returns the last row decoded for this statement's Execute
// result.
func (s *Statement) RowGet() (row [][]byte, ok bool) {
	return s.result.CurrentRow, s.result.CurrentRow != nil
}

// Result exposes the statement's Execute result-set state (column
// count, rows, status). Its Columns stay empty: the column definitions
// from Prepare are in Statement.Columns.
func (s *Statement) Result() *Result { return &s.result }
