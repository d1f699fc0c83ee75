package mlsqlite

import (
	"fmt"
	"unsafe"
)

func (s *Stmt) bindError(pos int, code Code) error {
	if code == SQLITE_OK {
		return nil
	}
	e := s.conn.lastError("bind", code).(*Error)
	e.kind = ErrBind
	if e.Message == "" {
		e.Message = fmt.Sprintf("parameter %d", pos)
	}
	return e
}

// Bind sets the 1-based parameter pos. TEXT and BLOB bytes are copied by the
// engine before Bind returns. A failed Bind leaves the previous binding in place.
func (s *Stmt) Bind(pos int, v Value) error {
	h, err := s.stmtHandle("bind")
	if err != nil {
		return err
	}
	p := unsafe.Pointer(h)
	var code Code
	switch v.kind {
	case KindNull:
		code = Code(c_sqlite3_bind_null(p, int32(pos)))
	case KindInteger:
		code = Code(c_sqlite3_bind_int64(p, int32(pos), v.i))
	case KindInteger32:
		code = Code(c_sqlite3_bind_int(p, int32(pos), int32(v.i)))
	case KindFloat:
		code = Code(c_sqlite3_bind_double(p, int32(pos), v.f))
	case KindText:
		code = sqlite3_bind_text(h, pos, v.b)
	case KindBlob:
		code = sqlite3_bind_blob(h, pos, v.b)
	case KindRaw:
		rh, err := v.raw.handle()
		if err != nil {
			return err
		}
		code = Code(c_sqlite3_bind_value(p, int32(pos), unsafe.Pointer(rh)))
	default:
		return misuseError("bind", "unknown value kind "+v.kind.String())
	}
	return s.bindError(pos, code)
}

// BindAll binds vals to parameters 1..len(vals).
func (s *Stmt) BindAll(vals ...Value) error {
	for i, v := range vals {
		if err := s.Bind(i+1, v); err != nil {
			return err
		}
	}
	return nil
}

// BindName binds a named parameter; name includes its prefix, e.g. ":id".
func (s *Stmt) BindName(name string, v Value) error {
	pos, err := s.ParameterIndex(name)
	if err != nil {
		return err
	}
	if pos == 0 {
		return &Error{Code: SQLITE_RANGE, ExtendedCode: SQLITE_RANGE, Message: "no such parameter " + name, Op: "bind", kind: ErrBind}
	}
	return s.Bind(pos, v)
}

func (s *Stmt) ParameterCount() (int, error) {
	h, err := s.stmtHandle("parameter count")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_bind_parameter_count(unsafe.Pointer(h))), nil
}

// ParameterIndex returns the position of a named parameter, 0 if there is none.
func (s *Stmt) ParameterIndex(name string) (int, error) {
	h, err := s.stmtHandle("parameter index")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_bind_parameter_index(unsafe.Pointer(h), name)), nil
}

// ParameterName returns the name of parameter pos, "" for "?" parameters.
func (s *Stmt) ParameterName(pos int) (string, error) {
	h, err := s.stmtHandle("parameter name")
	if err != nil {
		return "", err
	}
	return sqlite3_bind_parameter_name(h, pos), nil
}

// ClearBindings sets every parameter to NULL.
func (s *Stmt) ClearBindings() error {
	h, err := s.stmtHandle("clear bindings")
	if err != nil {
		return err
	}
	if code := Code(c_sqlite3_clear_bindings(unsafe.Pointer(h))); code != SQLITE_OK {
		return s.conn.lastError("clear bindings", code)
	}
	return nil
}

func (s *Stmt) ColumnCount() (int, error) {
	h, err := s.stmtHandle("column count")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_column_count(unsafe.Pointer(h))), nil
}

// DataCount returns the number of columns in the current row, 0 without one.
func (s *Stmt) DataCount() (int, error) {
	h, err := s.stmtHandle("data count")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_data_count(unsafe.Pointer(h))), nil
}

// columnHandle validates the 0-based column index against the result shape.
func (s *Stmt) columnHandle(op string, i int) (sqliteStmt, error) {
	h, err := s.stmtHandle(op)
	if err != nil {
		return nil, err
	}
	if n := int(c_sqlite3_column_count(unsafe.Pointer(h))); i < 0 || i >= n {
		return nil, &Error{
			Code:         SQLITE_RANGE,
			ExtendedCode: SQLITE_RANGE,
			Message:      fmt.Sprintf("column index %d out of range [0, %d)", i, n),
			Op:           op,
		}
	}
	return h, nil
}

func (s *Stmt) ColumnName(i int) (string, error) {
	h, err := s.columnHandle("column name", i)
	if err != nil {
		return "", err
	}
	return c_sqlite3_column_name(unsafe.Pointer(h), int32(i)), nil
}

// ColumnDecltype returns the declared type of a result column, "" for expressions.
func (s *Stmt) ColumnDecltype(i int) (string, error) {
	h, err := s.columnHandle("column decltype", i)
	if err != nil {
		return "", err
	}
	return c_sqlite3_column_decltype(unsafe.Pointer(h), int32(i)), nil
}

// ColumnType returns the datatype of column i in the current row.
func (s *Stmt) ColumnType(i int) (Kind, error) {
	h, err := s.columnHandle("column type", i)
	if err != nil {
		return KindNull, err
	}
	return kindOf(SqliteType(c_sqlite3_column_type(unsafe.Pointer(h), int32(i)))), nil
}

// Column decodes the 0-based column i of the current row. TEXT and BLOB
// payloads are copied; integers are always KindInteger.
func (s *Stmt) Column(i int) (Value, error) {
	h, err := s.columnHandle("column", i)
	if err != nil {
		return Value{}, err
	}
	return columnValue(h, i), nil
}

func columnValue(h sqliteStmt, i int) Value {
	p := unsafe.Pointer(h)
	switch SqliteType(c_sqlite3_column_type(p, int32(i))) {
	case SQLITE_INTEGER:
		return Integer(c_sqlite3_column_int64(p, int32(i)))
	case SQLITE_FLOAT:
		return Float(c_sqlite3_column_double(p, int32(i)))
	case SQLITE_TEXT:
		return Value{kind: KindText, b: sqlite3_column_bytes_copy(h, i, true)}
	case SQLITE_BLOB:
		return Value{kind: KindBlob, b: sqlite3_column_bytes_copy(h, i, false)}
	default:
		return Null()
	}
}

// Row decodes every column of the current row.
func (s *Stmt) Row() ([]Value, error) {
	h, err := s.stmtHandle("row")
	if err != nil {
		return nil, err
	}
	n := int(c_sqlite3_data_count(unsafe.Pointer(h)))
	row := make([]Value, n)
	for i := range row {
		row[i] = columnValue(h, i)
	}
	return row, nil
}
