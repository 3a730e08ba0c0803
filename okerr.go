package mysql

// okPacket holds the decoded fields of an OK packet (also used as the
// tail of a COM_STMT_PREPARE_OK / EOF-replacement under
// CLIENT_DEPRECATE_EOF). Grounded on the teacher's (old) packets.go
// handleOkPacket/readResultOK.
type okPacket struct {
	affectedRows uint64
	lastInsertID uint64
	statusFlags  serverStatus
	warnings     uint16
	info         string
}

func decodeOKPacket(data []byte, caps capability) (okPacket, error) {
	var ok okPacket
	if len(data) < 1 {
		return ok, ErrMalformedPacket
	}
	data = data[1:]

	n, err := readLenEncUint(&data)
	if err != nil {
		return ok, err
	}
	ok.affectedRows = n

	n, err = readLenEncUint(&data)
	if err != nil {
		return ok, err
	}
	ok.lastInsertID = n

	if caps&capProtocol41 != 0 {
		if len(data) < 4 {
			return ok, ErrMalformedPacket
		}
		ok.statusFlags = serverStatus(uint16(data[0]) | uint16(data[1])<<8)
		ok.warnings = uint16(data[2]) | uint16(data[3])<<8
		data = data[4:]
	} else if caps&capTransactions != 0 {
		if len(data) < 2 {
			return ok, ErrMalformedPacket
		}
		ok.statusFlags = serverStatus(uint16(data[0]) | uint16(data[1])<<8)
		data = data[2:]
	}
	ok.info = string(data)
	return ok, nil
}

func readLenEncUint(data *[]byte) (uint64, error) {
	v, isNull, n, err := readLengthEncodedInteger(*data)
	if err != nil {
		return 0, err
	}
	*data = (*data)[n:]
	if isNull {
		return 0, nil
	}
	return v, nil
}

// decodeEOFPacket decodes a 5-byte EOF packet, 0xfe marker included at
// data[0]: warning count then status flags.
func decodeEOFPacket(data []byte) (warnings uint16, status serverStatus, err error) {
	if len(data) < 5 {
		return 0, 0, ErrMalformedPacket
	}
	warnings = uint16(data[1]) | uint16(data[2])<<8
	status = serverStatus(uint16(data[3]) | uint16(data[4])<<8)
	return warnings, status, nil
}

// decodeErrPacket turns an ERR packet into the public *Error type.
// Grounded on the teacher's (old) packets.go handleErrorPacket.
func decodeErrPacket(data []byte) *Error {
	if len(data) < 3 {
		return serverError(0, "HY000", "malformed error packet")
	}
	code := uint16(data[1]) | uint16(data[2])<<8
	data = data[3:]

	sqlState := "HY000"
	if len(data) > 0 && data[0] == '#' && len(data) >= 6 {
		sqlState = string(data[1:6])
		data = data[6:]
	}
	return serverError(code, sqlState, string(data))
}
