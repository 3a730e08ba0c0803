package mysql

import "fmt"

// Datetime holds a DATE/TIME/DATETIME/TIMESTAMP value in the shape the
// binary protocol exchanges it, per spec.md §3. For TIME values, the
// wire's separate day count is folded into Hour (Hour = Day*24 +
// sub-day hour), matching how MySQL clients render elapsed time; Hour
// is wide enough to hold the full ±838:59:59 TIME range without
// overflow.
type Datetime struct {
	Year        uint16
	Month       uint8
	Day         uint8
	Hour        uint32
	Minute      uint8
	Second      uint8
	Microsecond uint32
	IsNegative  bool // meaningful for TIME only
}

// encodeBinaryDatetime writes the prepared-statement binary
// representation of dt: a 1-byte length prefix followed by 0, 4, 7, or
// 11 bytes for DATE/DATETIME/TIMESTAMP. isTime selects the TIME
// encoding instead (a sign byte and a 4-byte day count, 0, 8, or 12
// bytes after the prefix).
func encodeBinaryDatetime(dst []byte, dt *Datetime, isTime bool) []byte {
	if isTime {
		return encodeBinaryTime(dst, dt)
	}
	return encodeBinaryDate(dst, dt)
}

func encodeBinaryDate(dst []byte, dt *Datetime) []byte {
	if dt.Year == 0 && dt.Month == 0 && dt.Day == 0 &&
		dt.Hour == 0 && dt.Minute == 0 && dt.Second == 0 && dt.Microsecond == 0 {
		return append(dst, 0)
	}
	hasTime := dt.Hour != 0 || dt.Minute != 0 || dt.Second != 0 || dt.Microsecond != 0
	switch {
	case dt.Microsecond != 0:
		dst = append(dst, 11)
	case hasTime:
		dst = append(dst, 7)
	default:
		dst = append(dst, 4)
	}
	dst = putUint16(dst, dt.Year)
	dst = append(dst, dt.Month, dt.Day)
	if !hasTime {
		return dst
	}
	dst = append(dst, byte(dt.Hour), dt.Minute, dt.Second)
	if dt.Microsecond != 0 {
		dst = putUint32(dst, dt.Microsecond)
	}
	return dst
}

func encodeBinaryTime(dst []byte, dt *Datetime) []byte {
	if dt.Hour == 0 && dt.Minute == 0 && dt.Second == 0 && dt.Microsecond == 0 && dt.Day == 0 {
		return append(dst, 0)
	}
	if dt.Microsecond != 0 {
		dst = append(dst, 12)
	} else {
		dst = append(dst, 8)
	}
	if dt.IsNegative {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	days := dt.Hour / 24
	hour := byte(dt.Hour % 24)
	dst = putUint32(dst, days)
	dst = append(dst, hour, dt.Minute, dt.Second)
	if dt.Microsecond != 0 {
		dst = putUint32(dst, dt.Microsecond)
	}
	return dst
}

// decodeBinaryDate parses the DATE/DATETIME/TIMESTAMP binary form at
// the head of data, returning the number of bytes consumed (including
// the length prefix).
func decodeBinaryDate(data []byte) (dt Datetime, n int, err error) {
	if len(data) < 1 {
		return dt, 0, ErrMalformedPacket
	}
	length := int(data[0])
	if len(data) < 1+length {
		return dt, 0, ErrMalformedPacket
	}
	body := data[1 : 1+length]
	switch length {
	case 0:
	case 4:
		dt.Year = leUint16(body[0:2])
		dt.Month = body[2]
		dt.Day = body[3]
	case 7:
		dt.Year = leUint16(body[0:2])
		dt.Month = body[2]
		dt.Day = body[3]
		dt.Hour = uint32(body[4])
		dt.Minute = body[5]
		dt.Second = body[6]
	case 11:
		dt.Year = leUint16(body[0:2])
		dt.Month = body[2]
		dt.Day = body[3]
		dt.Hour = uint32(body[4])
		dt.Minute = body[5]
		dt.Second = body[6]
		dt.Microsecond = leUint32(body[7:11])
	default:
		return dt, 0, ErrMalformedPacket
	}
	return dt, 1 + length, nil
}

// decodeBinaryTime parses the TIME binary form at the head of data,
// folding the day count into Hour.
func decodeBinaryTime(data []byte) (dt Datetime, n int, err error) {
	if len(data) < 1 {
		return dt, 0, ErrMalformedPacket
	}
	length := int(data[0])
	if len(data) < 1+length {
		return dt, 0, ErrMalformedPacket
	}
	body := data[1 : 1+length]
	switch length {
	case 0:
	case 8, 12:
		dt.IsNegative = body[0] != 0
		days := leUint32(body[1:5])
		dt.Hour = days*24 + uint32(body[5])
		dt.Minute = body[6]
		dt.Second = body[7]
		if length == 12 {
			dt.Microsecond = leUint32(body[8:12])
		}
	default:
		return dt, 0, ErrMalformedPacket
	}
	return dt, 1 + length, nil
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// FormatDateTime renders dt as "YYYY-MM-DD HH:MM:SS[.ffffff]", the form
// spec.md §4.5 requires from get_char on a DATETIME/TIMESTAMP column.
func (dt Datetime) FormatDateTime() string {
	if dt.Microsecond != 0 {
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d",
			dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second, dt.Microsecond)
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
}

// FormatDate renders dt as "YYYY-MM-DD".
func (dt Datetime) FormatDate() string {
	return fmt.Sprintf("%04d-%02d-%02d", dt.Year, dt.Month, dt.Day)
}

// FormatTime renders dt as "[-]HH:MM:SS[.ffffff]".
func (dt Datetime) FormatTime() string {
	sign := ""
	if dt.IsNegative {
		sign = "-"
	}
	if dt.Microsecond != 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d.%06d", sign, dt.Hour, dt.Minute, dt.Second, dt.Microsecond)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, dt.Hour, dt.Minute, dt.Second)
}
