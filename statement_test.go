package mysql

import "testing"

func buildPrepareOKPacket(seq byte, stmtID uint32, numColumns, numParams uint16) []byte {
	var p []byte
	p = append(p, 0) // status OK
	p = putUint32(p, stmtID)
	p = putUint16(p, numColumns)
	p = putUint16(p, numParams)
	p = append(p, 0)    // reserved filler
	p = putUint16(p, 0) // warning count
	return rawPacket(seq, p)
}

func buildBinaryRowPacket(seq byte, values ...int64) []byte {
	nullBitmapLen := (len(values) + 7 + 2) / 8
	p := append([]byte{0}, make([]byte, nullBitmapLen)...)
	for _, v := range values {
		p = putUint64(p, uint64(v))
	}
	return rawPacket(seq, p)
}

func connectedStatementTestConn(t *testing.T) (*Connection, *mockConn) {
	t.Helper()
	scramble := scrambleFor(t)
	mc := &mockConn{}
	mc.toRead = append(mc.toRead, rawPacket(0, buildHandshakePacket(scramble))...)
	mc.toRead = append(mc.toRead, buildOKPacket(2)...)
	cfg := &Config{User: "root", Passwd: "secret"}
	c := newTestConnection(cfg, mc)
	pollDrain(t, c, PollIdle, 10)
	return c, mc
}

func TestPrepareExecuteWithBoundParam(t *testing.T) {
	c, mc := connectedStatementTestConn(t)

	mc.toRead = append(mc.toRead, buildPrepareOKPacket(1, 1, 1, 1)...)
	mc.toRead = append(mc.toRead, buildColumnDefPacket(2, "?")...)    // param def
	mc.toRead = append(mc.toRead, buildEOFPacket(3)...)               // param EOF
	mc.toRead = append(mc.toRead, buildColumnDefPacket(4, "result")...) // column def
	mc.toRead = append(mc.toRead, buildEOFPacket(5)...)               // column EOF

	if err := c.Prepare("SELECT ? + 1"); err != nil {
		t.Fatal(err)
	}
	pollDrain(t, c, PollEOF, 10)

	stmt := c.Statement()
	if stmt == nil {
		t.Fatal("expected a prepared statement")
	}
	if stmt.ParamCount != 1 || len(stmt.Columns) != 1 {
		t.Fatalf("paramCount=%d columns=%d", stmt.ParamCount, len(stmt.Columns))
	}

	if err := stmt.SetInt(0, 5); err != nil {
		t.Fatal(err)
	}

	mc.toRead = append(mc.toRead, rawPacket(1, []byte{1})...) // column count
	mc.toRead = append(mc.toRead, buildColumnDefPacket(2, "result")...)
	mc.toRead = append(mc.toRead, buildEOFPacket(3)...)
	mc.toRead = append(mc.toRead, buildBinaryRowPacket(4, 6)...)
	mc.toRead = append(mc.toRead, buildEOFPacket(5)...)

	if err := c.Execute(); err != nil {
		t.Fatal(err)
	}
	pollDrain(t, c, PollRowReady, 10)

	v, isNull, err := stmt.GetInt(0)
	if err != nil || isNull {
		t.Fatalf("GetInt(0) = %d isNull=%v err=%v", v, isNull, err)
	}
	if v != 6 {
		t.Fatalf("got %d, want 6", v)
	}

	pollDrain(t, c, PollEOF, 10)
	if c.state != stateIdle {
		t.Fatalf("expected stateIdle after result set, got %v", c.state)
	}
}

func TestStatementSetterRejectsOutOfRangeParam(t *testing.T) {
	s := &Statement{params: make([]paramValue, 1)}
	if err := s.SetInt(1, 5); err != ErrParamOutOfRange {
		t.Fatalf("got %v, want ErrParamOutOfRange", err)
	}
}

func TestStatementLongDataLocksParam(t *testing.T) {
	s := &Statement{params: make([]paramValue, 1)}
	if err := s.AppendLongData(0, []byte("chunk1")); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLongData(0, []byte("chunk2")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInt(0, 1); err != ErrLongDataLocked {
		t.Fatalf("got %v, want ErrLongDataLocked", err)
	}
	if string(s.params[0].longData) != "chunk1chunk2" {
		t.Fatalf("got %q", s.params[0].longData)
	}
	s.Reset()
	if s.params[0].locked {
		t.Fatal("expected Reset to clear the lock")
	}
	if err := s.SetInt(0, 1); err != nil {
		t.Fatal(err)
	}
}

func TestBuildExecutePacketEncodesNullBitmapAndTypes(t *testing.T) {
	s := &Statement{id: 42, params: make([]paramValue, 2)}
	if err := s.SetInt(0, -7); err != nil {
		t.Fatal(err)
	}
	if err := s.SetNull(1); err != nil {
		t.Fatal(err)
	}
	buf, err := s.buildExecutePacket()
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != byte(comStmtExecute) {
		t.Fatalf("got command byte %#x", buf[0])
	}
	stmtID := uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16 | uint32(buf[4])<<24
	if stmtID != 42 {
		t.Fatalf("got stmt id %d", stmtID)
	}
	// cursor(1) + iteration count(4) precede the 1-byte NULL bitmap for 2 params.
	nullBitmap := buf[1+4+1+4]
	if nullBitmap&(1<<1) == 0 {
		t.Fatalf("expected bit 1 set in NULL bitmap, got %08b", nullBitmap)
	}
	// new_params_bound_flag, then (type, unsigned flag) per param.
	if buf[11] != 1 {
		t.Fatalf("expected new_params_bound_flag 1, got %d", buf[11])
	}
	if buf[12] != byte(TypeLongLong) || buf[13] != 0 || buf[14] != byte(TypeNull) || buf[15] != 0 {
		t.Fatalf("got type block % x", buf[12:16])
	}
}
