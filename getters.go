package mysql

import (
	"strconv"
	"strings"
)

// This file implements the typed column accessors spec.md §4.5
// requires (get_char always returns the canonical text form; the
// numeric/datetime getters parse it). Both the text protocol (Query)
// and the binary protocol (Execute, via decodeBinaryValue) converge on
// the same []byte-per-column representation, so one set of getters
// serves both.

func cellAt(row [][]byte, i int) ([]byte, bool, error) {
	if i < 0 || i >= len(row) {
		return nil, false, ErrColumnIndexOutOfRange
	}
	if row[i] == nil {
		return nil, true, nil
	}
	return row[i], false, nil
}

// GetChar returns column i's value in its canonical text form, and
// whether it was SQL NULL.
func (r *Result) GetChar(i int) (string, bool, error) {
	if r.CurrentRow == nil {
		return "", false, ErrRowNotReady
	}
	v, isNull, err := cellAt(r.CurrentRow, i)
	if err != nil || isNull {
		return "", isNull, err
	}
	return string(v), false, nil
}

// GetInt parses column i as a signed integer.
func (r *Result) GetInt(i int) (int64, bool, error) {
	s, isNull, err := r.GetChar(i)
	if err != nil || isNull {
		return 0, isNull, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, false, err
}

// GetUnsignedInt parses column i as an unsigned integer.
func (r *Result) GetUnsignedInt(i int) (uint64, bool, error) {
	s, isNull, err := r.GetChar(i)
	if err != nil || isNull {
		return 0, isNull, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return n, false, err
}

// GetDouble parses column i as a floating-point value.
func (r *Result) GetDouble(i int) (float64, bool, error) {
	s, isNull, err := r.GetChar(i)
	if err != nil || isNull {
		return 0, isNull, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, false, err
}

// GetDatetime parses column i as a DATE/DATETIME/TIMESTAMP value.
func (r *Result) GetDatetime(i int) (Datetime, bool, error) {
	s, isNull, err := r.GetChar(i)
	if err != nil || isNull {
		return Datetime{}, isNull, err
	}
	dt, err := parseDatetimeText(s)
	return dt, false, err
}

func parseDatetimeText(s string) (Datetime, error) {
	var dt Datetime
	datePart, timePart, _ := strings.Cut(s, " ")
	var year, month, day int
	n, err := parseDateParts(datePart, &year, &month, &day)
	if err != nil || n != 3 {
		return dt, ErrMalformedPacket
	}
	dt.Year, dt.Month, dt.Day = uint16(year), uint8(month), uint8(day)
	if timePart != "" {
		var hour, minute int
		var second float64
		parts := strings.SplitN(timePart, ":", 3)
		if len(parts) == 3 {
			hour, _ = strconv.Atoi(parts[0])
			minute, _ = strconv.Atoi(parts[1])
			second, _ = strconv.ParseFloat(parts[2], 64)
		}
		dt.Hour, dt.Minute, dt.Second = uint32(hour), uint8(minute), uint8(second)
		dt.Microsecond = uint32((second - float64(int(second))) * 1e6)
	}
	return dt, nil
}

func parseDateParts(s string, year, month, day *int) (int, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return 0, ErrMalformedPacket
	}
	var err error
	*year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	*month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	*day, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, err
	}
	return 3, nil
}

// The Statement result carries the same shape; delegate.

// GetChar returns column i's canonical text value from the statement's
// current Execute row.
func (s *Statement) GetChar(i int) (string, bool, error) { return s.result.GetChar(i) }

// GetInt parses column i of the statement's current row as a signed integer.
func (s *Statement) GetInt(i int) (int64, bool, error) { return s.result.GetInt(i) }

// GetUnsignedInt parses column i as an unsigned integer.
func (s *Statement) GetUnsignedInt(i int) (uint64, bool, error) { return s.result.GetUnsignedInt(i) }

// GetDouble parses column i as a floating-point value.
func (s *Statement) GetDouble(i int) (float64, bool, error) { return s.result.GetDouble(i) }

// GetDatetime parses column i as a DATE/DATETIME/TIMESTAMP value.
func (s *Statement) GetDatetime(i int) (Datetime, bool, error) { return s.result.GetDatetime(i) }
