package mysql

import "fmt"

// paramKind tags which field of paramValue holds a bound parameter's
// value, mirroring the tagged union ascore_stmt_param_st uses in
// original_source/src/ascore/structs.h.
type paramKind int

const (
	paramNone paramKind = iota
	paramInt
	paramUint
	paramFloat
	paramDouble
	paramString
	paramBinary
	paramDatetime
	paramTime
	paramNull
	paramLongData
)

type paramValue struct {
	kind     paramKind
	i        int64
	u        uint64
	f32      float32
	f64      float64
	s        []byte
	dt       Datetime
	longData []byte // accumulated across SendLongData calls
	locked   bool   // true once SendLongData has been used, until Reset/Execute
}

func (v *paramValue) colType() (ColumnType, bool) {
	switch v.kind {
	case paramInt, paramUint:
		return TypeLongLong, v.kind == paramUint
	case paramFloat:
		return TypeFloat, false
	case paramDouble:
		return TypeDouble, false
	case paramString, paramBinary, paramLongData:
		return TypeVarString, false
	case paramDatetime:
		return TypeDateTime, false
	case paramTime:
		return TypeTime, false
	case paramNull:
		return TypeNull, false
	default:
		return TypeNull, false
	}
}

// Statement is a prepared statement bound to one Connection, per
// spec.md §3's Statement entity. Exactly one Statement may be prepared
// on a Connection at a time; preparing a new one replaces the last
// locally, without sending COM_STMT_CLOSE for it.
type Statement struct {
	conn *Connection

	id         uint32
	ParamCount int
	Columns    []Column
	State      StmtState

	params []paramValue

	// newBind is MySQL's new_params_bound_flag: true whenever a setter
	// has bound a parameter since the last successful Execute, which is
	// when the type block must be resent on the wire. Execute clears it;
	// Prepare and Reset set it, per spec.md §8's bound-parameter-type
	// invariant.
	newBind bool

	result Result
}

func (s *Statement) paramAt(i int) (*paramValue, error) {
	if i < 0 || i >= len(s.params) {
		return nil, ErrParamOutOfRange
	}
	return &s.params[i], nil
}

// SetInt binds a signed integer to param i.
func (s *Statement) SetInt(i int, v int64) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramInt, i: v}
	s.newBind = true
	return nil
}

// SetUnsignedInt binds an unsigned integer to param i.
func (s *Statement) SetUnsignedInt(i int, v uint64) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramUint, u: v}
	s.newBind = true
	return nil
}

// SetFloat binds a float32 to param i.
func (s *Statement) SetFloat(i int, v float32) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramFloat, f32: v}
	s.newBind = true
	return nil
}

// SetDouble binds a float64 to param i.
func (s *Statement) SetDouble(i int, v float64) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramDouble, f64: v}
	s.newBind = true
	return nil
}

// SetString binds a text value to param i.
func (s *Statement) SetString(i int, v string) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramString, s: []byte(v)}
	s.newBind = true
	return nil
}

// SetBinary binds an opaque byte value to param i.
func (s *Statement) SetBinary(i int, v []byte) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramBinary, s: v}
	s.newBind = true
	return nil
}

// SetNull binds SQL NULL to param i.
func (s *Statement) SetNull(i int) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramNull}
	s.newBind = true
	return nil
}

// SetDatetime binds a DATETIME/TIMESTAMP value to param i.
func (s *Statement) SetDatetime(i int, v Datetime) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramDatetime, dt: v}
	s.newBind = true
	return nil
}

// SetTime binds a TIME value to param i.
func (s *Statement) SetTime(i int, v Datetime) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	if p.locked {
		return ErrLongDataLocked
	}
	*p = paramValue{kind: paramTime, dt: v}
	s.newBind = true
	return nil
}

// AppendLongData appends a chunk to param i's long-data buffer, sent
// via COM_STMT_SEND_LONG_DATA. The parameter stays locked (rejecting
// ordinary setters) until Reset or a successful Execute.
func (s *Statement) AppendLongData(i int, chunk []byte) error {
	p, err := s.paramAt(i)
	if err != nil {
		return err
	}
	p.kind = paramLongData
	p.locked = true
	p.longData = append(p.longData, chunk...)
	s.newBind = true
	return nil
}

// Reset clears all bound parameter values and unlocks long-data slots,
// without discarding the prepared statement itself (COM_STMT_RESET).
// A later Execute must resend parameter types, since the server has
// forgotten the previous binding.
func (s *Statement) Reset() {
	for i := range s.params {
		s.params[i] = paramValue{}
	}
	s.newBind = true
}

// buildExecutePacket encodes a COM_STMT_EXECUTE payload: statement id,
// cursor flag, iteration count, a NULL bitmap, the new-params-bound
// flag and per-param type codes, then the parameter values themselves.
// Grounded on the teacher's (old) packets.go buildExecutePacket,
// generalized from database/sql's driver.Value slice to paramValue.
func (s *Statement) buildExecutePacket() ([]byte, error) {
	buf := []byte{byte(comStmtExecute)}
	buf = putUint32(buf, s.id)
	buf = append(buf, 0) // cursor type: CURSOR_TYPE_NO_CURSOR
	buf = putUint32(buf, 1)

	n := len(s.params)
	if n == 0 {
		return buf, nil
	}

	nullBitmapLen := (n + 7) / 8
	nullBitmap := make([]byte, nullBitmapLen)
	for i, p := range s.params {
		if p.kind == paramNull {
			nullBitmap[i/8] |= 1 << uint(i%8)
		}
	}
	buf = append(buf, nullBitmap...)
	if s.newBind {
		buf = append(buf, 1) // new_params_bound_flag

		typeBlock := make([]byte, 0, n*2)
		for i := range s.params {
			t, unsigned := s.params[i].colType()
			flag := byte(0)
			if unsigned {
				flag = 0x80
			}
			typeBlock = append(typeBlock, byte(t), flag)
		}
		buf = append(buf, typeBlock...)
	} else {
		buf = append(buf, 0) // new_params_bound_flag: types unchanged since last execute
	}

	for i := range s.params {
		p := &s.params[i]
		switch p.kind {
		case paramNull:
			// already reflected in the NULL bitmap; no value bytes
		case paramInt:
			buf = putUint64(buf, uint64(p.i))
		case paramUint:
			buf = putUint64(buf, p.u)
		case paramFloat:
			buf = append(buf, float32ToBytes(p.f32)...)
		case paramDouble:
			buf = append(buf, float64ToBytes(p.f64)...)
		case paramString, paramBinary:
			buf = putLengthEncodedString(buf, p.s)
		case paramLongData:
			// value already streamed via COM_STMT_SEND_LONG_DATA
		case paramDatetime:
			buf = encodeBinaryDatetime(buf, &p.dt, false)
		case paramTime:
			buf = encodeBinaryDatetime(buf, &p.dt, true)
		default:
			return nil, fmt.Errorf("mysql: parameter %d not bound", i)
		}
	}
	return buf, nil
}

// decodeBinaryRow parses one Protocol::Binary::ResultsetRow given the
// statement's result columns, per spec.md §4.2. Grounded on the
// teacher's (old) packets.go readBinaryRow.
func decodeBinaryRow(data []byte, cols []Column) ([][]byte, error) {
	if len(data) < 1 || data[0] != 0 {
		return nil, ErrMalformedPacket
	}
	data = data[1:]

	nullBitmapLen := (len(cols) + 7 + 2) / 8
	if len(data) < nullBitmapLen {
		return nil, ErrMalformedPacket
	}
	nullBitmap := data[:nullBitmapLen]
	data = data[nullBitmapLen:]

	row := make([][]byte, len(cols))
	for i, col := range cols {
		bit := nullBitmap[(i+2)/8] & (1 << uint((i+2)%8))
		if bit != 0 {
			row[i] = nil
			continue
		}
		val, n, err := decodeBinaryValue(data, col.Type, col.Flags)
		if err != nil {
			return nil, err
		}
		row[i] = val
		data = data[n:]
	}
	return row, nil
}

// decodeBinaryValue decodes one non-NULL column value from the binary
// row format into its text representation, matching spec.md §4.5's
// contract that get_char always returns the canonical text form
// regardless of the column's wire type.
func decodeBinaryValue(data []byte, t ColumnType, flags ColumnFlags) ([]byte, int, error) {
	switch t {
	case TypeTiny:
		if len(data) < 1 {
			return nil, 0, ErrMalformedPacket
		}
		if flags&FlagUnsigned != 0 {
			return []byte(fmt.Sprintf("%d", data[0])), 1, nil
		}
		return []byte(fmt.Sprintf("%d", int8(data[0]))), 1, nil
	case TypeShort, TypeYear:
		if len(data) < 2 {
			return nil, 0, ErrMalformedPacket
		}
		v := leUint16(data[:2])
		if flags&FlagUnsigned != 0 {
			return []byte(fmt.Sprintf("%d", v)), 2, nil
		}
		return []byte(fmt.Sprintf("%d", int16(v))), 2, nil
	case TypeLong, TypeInt24:
		if len(data) < 4 {
			return nil, 0, ErrMalformedPacket
		}
		v := leUint32(data[:4])
		if flags&FlagUnsigned != 0 {
			return []byte(fmt.Sprintf("%d", v)), 4, nil
		}
		return []byte(fmt.Sprintf("%d", int32(v))), 4, nil
	case TypeLongLong:
		if len(data) < 8 {
			return nil, 0, ErrMalformedPacket
		}
		v := uint64(leUint32(data[:4])) | uint64(leUint32(data[4:8]))<<32
		if flags&FlagUnsigned != 0 {
			return []byte(fmt.Sprintf("%d", v)), 8, nil
		}
		return []byte(fmt.Sprintf("%d", int64(v))), 8, nil
	case TypeFloat:
		if len(data) < 4 {
			return nil, 0, ErrMalformedPacket
		}
		return []byte(fmt.Sprintf("%g", bytesToFloat32(data[:4]))), 4, nil
	case TypeDouble:
		if len(data) < 8 {
			return nil, 0, ErrMalformedPacket
		}
		return []byte(fmt.Sprintf("%g", bytesToFloat64(data[:8]))), 8, nil
	case TypeDate, TypeDateTime, TypeTimestamp:
		dt, n, err := decodeBinaryDate(data)
		if err != nil {
			return nil, 0, err
		}
		if t == TypeDate {
			return []byte(dt.FormatDate()), n, nil
		}
		return []byte(dt.FormatDateTime()), n, nil
	case TypeTime:
		dt, n, err := decodeBinaryTime(data)
		if err != nil {
			return nil, 0, err
		}
		return []byte(dt.FormatTime()), n, nil
	default: // string-family types, including DECIMAL/NEWDECIMAL as text
		val, _, n, err := readLengthEncodedString(data)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), val...), n, nil
	}
}
