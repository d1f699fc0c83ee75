package mlsqlite

import (
	"fmt"
	"strconv"
	"time"
	"unsafe"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindInteger32
	KindFloat
	KindText
	KindBlob
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindInteger32:
		return "INTEGER32"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	case KindRaw:
		return "RAW"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func kindOf(t SqliteType) Kind {
	switch t {
	case SQLITE_INTEGER:
		return KindInteger
	case SQLITE_FLOAT:
		return KindFloat
	case SQLITE_TEXT:
		return KindText
	case SQLITE_BLOB:
		return KindBlob
	default:
		return KindNull
	}
}

// Value is a single SQL value crossing the binding boundary.
// The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    []byte
	raw  *RawValue
}

func Null() Value             { return Value{} }
func Integer(v int64) Value   { return Value{kind: KindInteger, i: v} }
func Integer32(v int32) Value { return Value{kind: KindInteger32, i: int64(v)} }
func Float(v float64) Value   { return Value{kind: KindFloat, f: v} }
func Text(s string) Value     { return Value{kind: KindText, b: []byte(s)} }
func Raw(r *RawValue) Value   { return Value{kind: KindRaw, raw: r} }

// TextBytes wraps UTF-8 bytes as TEXT. The slice is read when the value is bound,
// so the caller may reuse it afterwards.
func TextBytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindText, b: b}
}

// Blob wraps b as a BLOB. A nil or empty slice is a zero-length blob, not NULL.
func Blob(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBlob, b: b}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload, converting FLOAT by truncation. Other kinds yield 0.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInteger, KindInteger32:
		return v.i
	case KindFloat:
		return int64(v.f)
	}
	return 0
}

// Float64 returns the float payload, converting integers. Other kinds yield 0.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInteger, KindInteger32:
		return float64(v.i)
	}
	return 0
}

// Bytes returns the TEXT or BLOB payload, nil for other kinds.
func (v Value) Bytes() []byte {
	if v.kind == KindText || v.kind == KindBlob {
		return v.b
	}
	return nil
}

// Text returns the TEXT or BLOB payload as a string, "" for other kinds.
func (v Value) Text() string {
	if v.kind == KindText || v.kind == KindBlob {
		return string(v.b)
	}
	return ""
}

// RawValue returns the engine value view of a KindRaw value.
func (v Value) RawValue() *RawValue {
	if v.kind == KindRaw {
		return v.raw
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger, KindInteger32:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(string(v.b))
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "RAW"
	}
}

// Any converts the value to the driver.Value set: nil, int64, float64, string or []byte.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger, KindInteger32:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return string(v.b)
	case KindBlob:
		return v.b
	}
	return nil
}

// ValueOf converts a Go value to a Value, following the database/sql conversions.
func ValueOf(x any) (Value, error) {
	switch val := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case *RawValue:
		return Raw(val), nil
	case int64:
		return Integer(val), nil
	case int:
		return Integer(int64(val)), nil
	case int32:
		return Integer32(val), nil
	case int16:
		return Integer(int64(val)), nil
	case int8:
		return Integer(int64(val)), nil
	case uint32:
		return Integer(int64(val)), nil
	case uint16:
		return Integer(int64(val)), nil
	case uint8:
		return Integer(int64(val)), nil
	case bool:
		if val {
			return Integer(1), nil
		}
		return Integer(0), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(float64(val)), nil
	case string:
		return Text(val), nil
	case []byte:
		return Blob(val), nil
	case time.Time:
		return Text(val.Format(time.RFC3339Nano)), nil
	default:
		return Value{}, fmt.Errorf("mlsqlite: unsupported value type %T", x)
	}
}

// RawValue is a transient view of an engine value passed to a user function.
// It is only valid for the duration of the call; afterwards every accessor fails
// with an error matching ErrMisuse.
type RawValue struct {
	ptr sqliteValue
}

func (r *RawValue) handle() (sqliteValue, error) {
	if r == nil || r.ptr == nil {
		return nil, misuseError("value", "value used outside of its function call")
	}
	return r.ptr, nil
}

func (r *RawValue) invalidate() { r.ptr = nil }

// Type reports the engine's current datatype of the value.
func (r *RawValue) Type() (Kind, error) {
	h, err := r.handle()
	if err != nil {
		return KindNull, err
	}
	return kindOf(SqliteType(c_sqlite3_value_type(unsafe.Pointer(h)))), nil
}

func (r *RawValue) Int64() (int64, error) {
	h, err := r.handle()
	if err != nil {
		return 0, err
	}
	return c_sqlite3_value_int64(unsafe.Pointer(h)), nil
}

func (r *RawValue) Float64() (float64, error) {
	h, err := r.handle()
	if err != nil {
		return 0, err
	}
	return c_sqlite3_value_double(unsafe.Pointer(h)), nil
}

// Text returns the value converted to TEXT.
func (r *RawValue) Text() (string, error) {
	h, err := r.handle()
	if err != nil {
		return "", err
	}
	return string(sqlite3_value_bytes_copy(h, true)), nil
}

// Blob returns a copy of the value's bytes.
func (r *RawValue) Blob() ([]byte, error) {
	h, err := r.handle()
	if err != nil {
		return nil, err
	}
	return sqlite3_value_bytes_copy(h, false), nil
}

// Value decodes the engine value into an owned Value according to its datatype.
func (r *RawValue) Value() (Value, error) {
	h, err := r.handle()
	if err != nil {
		return Value{}, err
	}
	switch SqliteType(c_sqlite3_value_type(unsafe.Pointer(h))) {
	case SQLITE_INTEGER:
		return Integer(c_sqlite3_value_int64(unsafe.Pointer(h))), nil
	case SQLITE_FLOAT:
		return Float(c_sqlite3_value_double(unsafe.Pointer(h))), nil
	case SQLITE_TEXT:
		return Value{kind: KindText, b: sqlite3_value_bytes_copy(h, true)}, nil
	case SQLITE_BLOB:
		return Value{kind: KindBlob, b: sqlite3_value_bytes_copy(h, false)}, nil
	default:
		return Null(), nil
	}
}
