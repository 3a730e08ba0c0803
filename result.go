package mysql

// Column describes one column of a result set, decoded from a
// COM_QUERY/COM_STMT_PREPARE column-definition packet (the copies a
// COM_STMT_EXECUTE reply resends are skipped, not decoded). Field names
// follow spec.md §3's Column entity, grounded on the teacher's
// fields.go mysqlField (reworked from a database/sql-oriented struct
// into the plain record the spec calls for).
type Column struct {
	Schema          string
	Table           string
	OriginTable     string
	Name            string
	OriginName      string
	Charset         uint16
	Length          uint32
	Type            ColumnType
	Flags           ColumnFlags
	Decimals        uint8
	DefaultValue    []byte
	HasDefaultValue bool
}

// Result accumulates one result set as it streams in across however
// many Poll calls it takes, per spec.md §3's Result entity: the column
// definitions, then rows delivered one at a time as ROW_READY poll
// outcomes.
type Result struct {
	ColumnCount int
	Columns     []Column
	EOFReached  bool // all columns have arrived; rows may follow

	CurrentRow   [][]byte // nil entries mark SQL NULL
	rowComplete  bool
	AffectedRows uint64
	LastInsertID uint64
	ServerStatus serverStatus
	WarningCount uint16
	InfoMessage  string
}

func (r *Result) reset() {
	*r = Result{}
}

// ColumnByIndex returns column i, or an error if i is out of range.
func (r *Result) ColumnByIndex(i int) (*Column, error) {
	if i < 0 || i >= len(r.Columns) {
		return nil, ErrColumnIndexOutOfRange
	}
	return &r.Columns[i], nil
}

// decodeColumnDefinition parses one Protocol::ColumnDefinition41
// packet, grounded on the teacher's packets.go readColumns loop.
func decodeColumnDefinition(data []byte) (Column, error) {
	var col Column

	next := func() ([]byte, error) {
		b, _, n, err := readLengthEncodedString(data)
		data = data[n:]
		return b, err
	}

	if _, err := next(); err != nil { // catalog, always "def"
		return col, err
	}
	schema, err := next()
	if err != nil {
		return col, err
	}
	table, err := next()
	if err != nil {
		return col, err
	}
	origTable, err := next()
	if err != nil {
		return col, err
	}
	name, err := next()
	if err != nil {
		return col, err
	}
	origName, err := next()
	if err != nil {
		return col, err
	}

	// length-encoded integer 0x0c, then: charset(2) length(4) type(1)
	// flags(2) decimals(1) filler(2)
	if len(data) < 1 {
		return col, ErrMalformedPacket
	}
	data = data[1:]
	if len(data) < 12 {
		return col, ErrMalformedPacket
	}
	col.Charset = uint16(data[0]) | uint16(data[1])<<8
	col.Length = uint32(data[2]) | uint32(data[3])<<8 | uint32(data[4])<<16 | uint32(data[5])<<24
	col.Type = ColumnType(data[6])
	col.Flags = ColumnFlags(uint16(data[7]) | uint16(data[8])<<8)
	col.Decimals = data[9]
	data = data[12:] // 2-byte filler included

	col.Schema = string(schema)
	col.Table = string(table)
	col.OriginTable = string(origTable)
	col.Name = string(name)
	col.OriginName = string(origName)

	if len(data) > 0 {
		def, isNull, _, derr := readLengthEncodedString(data)
		if derr == nil && !isNull {
			col.DefaultValue = def
			col.HasDefaultValue = true
		}
	}
	return col, nil
}

// decodeTextRow parses one Protocol::Text row into length-encoded
// column values, nil for SQL NULL.
func decodeTextRow(data []byte, numCols int) ([][]byte, error) {
	row := make([][]byte, numCols)
	for i := 0; i < numCols; i++ {
		val, isNull, n, err := readLengthEncodedString(data)
		if err != nil {
			return nil, err
		}
		if isNull {
			row[i] = nil
		} else {
			row[i] = append([]byte(nil), val...)
		}
		data = data[n:]
	}
	return row, nil
}
