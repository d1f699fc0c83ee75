package mlsqlite

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// define all necessary constants first
type Code int32

// note, that the only real statuses are OK, ROW and DONE - everything else is an error
const (
	SQLITE_OK         Code = 0
	SQLITE_ERROR      Code = 1
	SQLITE_INTERNAL   Code = 2
	SQLITE_PERM       Code = 3
	SQLITE_ABORT      Code = 4
	SQLITE_BUSY       Code = 5
	SQLITE_LOCKED     Code = 6
	SQLITE_NOMEM      Code = 7
	SQLITE_READONLY   Code = 8
	SQLITE_INTERRUPT  Code = 9
	SQLITE_IOERR      Code = 10
	SQLITE_CORRUPT    Code = 11
	SQLITE_NOTFOUND   Code = 12
	SQLITE_FULL       Code = 13
	SQLITE_CANTOPEN   Code = 14
	SQLITE_PROTOCOL   Code = 15
	SQLITE_EMPTY      Code = 16
	SQLITE_SCHEMA     Code = 17
	SQLITE_TOOBIG     Code = 18
	SQLITE_CONSTRAINT Code = 19
	SQLITE_MISMATCH   Code = 20
	SQLITE_MISUSE     Code = 21
	SQLITE_NOLFS      Code = 22
	SQLITE_AUTH       Code = 23
	SQLITE_FORMAT     Code = 24
	SQLITE_RANGE      Code = 25
	SQLITE_NOTADB     Code = 26
	SQLITE_NOTICE     Code = 27
	SQLITE_WARNING    Code = 28
	SQLITE_ROW        Code = 100
	SQLITE_DONE       Code = 101
)

// Primary strips the extended bits from a result code.
func (c Code) Primary() Code { return c & 0xff }

func (c Code) String() string {
	switch c.Primary() {
	case SQLITE_ROW:
		return "SQLITE_ROW"
	case SQLITE_DONE:
		return "SQLITE_DONE"
	}
	if name, ok := codeNames[c.Primary()]; ok {
		return name
	}
	return fmt.Sprintf("SQLITE_CODE(%d)", int32(c))
}

var codeNames = map[Code]string{
	SQLITE_OK:         "SQLITE_OK",
	SQLITE_ERROR:      "SQLITE_ERROR",
	SQLITE_INTERNAL:   "SQLITE_INTERNAL",
	SQLITE_PERM:       "SQLITE_PERM",
	SQLITE_ABORT:      "SQLITE_ABORT",
	SQLITE_BUSY:       "SQLITE_BUSY",
	SQLITE_LOCKED:     "SQLITE_LOCKED",
	SQLITE_NOMEM:      "SQLITE_NOMEM",
	SQLITE_READONLY:   "SQLITE_READONLY",
	SQLITE_INTERRUPT:  "SQLITE_INTERRUPT",
	SQLITE_IOERR:      "SQLITE_IOERR",
	SQLITE_CORRUPT:    "SQLITE_CORRUPT",
	SQLITE_NOTFOUND:   "SQLITE_NOTFOUND",
	SQLITE_FULL:       "SQLITE_FULL",
	SQLITE_CANTOPEN:   "SQLITE_CANTOPEN",
	SQLITE_PROTOCOL:   "SQLITE_PROTOCOL",
	SQLITE_EMPTY:      "SQLITE_EMPTY",
	SQLITE_SCHEMA:     "SQLITE_SCHEMA",
	SQLITE_TOOBIG:     "SQLITE_TOOBIG",
	SQLITE_CONSTRAINT: "SQLITE_CONSTRAINT",
	SQLITE_MISMATCH:   "SQLITE_MISMATCH",
	SQLITE_MISUSE:     "SQLITE_MISUSE",
	SQLITE_NOLFS:      "SQLITE_NOLFS",
	SQLITE_AUTH:       "SQLITE_AUTH",
	SQLITE_FORMAT:     "SQLITE_FORMAT",
	SQLITE_RANGE:      "SQLITE_RANGE",
	SQLITE_NOTADB:     "SQLITE_NOTADB",
	SQLITE_NOTICE:     "SQLITE_NOTICE",
	SQLITE_WARNING:    "SQLITE_WARNING",
}

// Fundamental datatypes reported by sqlite3_column_type and sqlite3_value_type.
type SqliteType int32

const (
	SQLITE_INTEGER SqliteType = 1
	SQLITE_FLOAT   SqliteType = 2
	SQLITE_TEXT    SqliteType = 3
	SQLITE_BLOB    SqliteType = 4
	SQLITE_NULL    SqliteType = 5
)

const (
	sqlite_utf8         = 1
	sqlite_trace_stmt   = 0x01
	sqlite_blob_rw      = 1
	sqlite_static       = uintptr(0)
	sqlite_transient    = ^uintptr(0) // (sqlite3_destructor_type)-1
	sqlite_max_int_size = 1<<31 - 1
)

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_t struct{}
type sqlite3_stmt_t struct{}
type sqlite3_value_t struct{}
type sqlite3_context_t struct{}
type sqlite3_blob_t struct{}

type sqliteDB *sqlite3_t
type sqliteStmt *sqlite3_stmt_t
type sqliteValue *sqlite3_value_t
type sqliteContext *sqlite3_context_t
type sqliteBlob *sqlite3_blob_t

// empty TEXT needs a non-NULL pointer, otherwise the engine binds NULL
var emptyText = []byte{0}

// then, define C extern methods
var (
	c_sqlite3_libversion        func() string
	c_sqlite3_libversion_number func() int32
	c_sqlite3_sourceid          func() string
	c_sqlite3_complete          func(sql string) int32
	c_sqlite3_sleep             func(ms int32) int32
	c_sqlite3_compileoption_get func(n int32) unsafe.Pointer // const char* | NULL
	c_sqlite3_errstr            func(code int32) string
	c_sqlite3_free              func(p unsafe.Pointer)

	c_sqlite3_open_v2 func(
		filename string, // const char*
		db unsafe.Pointer, // sqlite3**
		flags int32,
		vfs unsafe.Pointer, // const char* | NULL
	) int32
	c_sqlite3_close             func(db unsafe.Pointer) int32
	c_sqlite3_errcode           func(db unsafe.Pointer) int32
	c_sqlite3_extended_errcode  func(db unsafe.Pointer) int32
	c_sqlite3_errmsg            func(db unsafe.Pointer) string
	c_sqlite3_interrupt         func(db unsafe.Pointer)
	c_sqlite3_last_insert_rowid func(db unsafe.Pointer) int64
	c_sqlite3_changes           func(db unsafe.Pointer) int32
	c_sqlite3_total_changes     func(db unsafe.Pointer) int32
	c_sqlite3_get_autocommit    func(db unsafe.Pointer) int32
	c_sqlite3_busy_timeout      func(db unsafe.Pointer, ms int32) int32

	c_sqlite3_busy_handler func(
		db unsafe.Pointer,
		cb uintptr, // int (*)(void*, int)
		arg uintptr, // void*
	) int32
	c_sqlite3_trace_v2 func(
		db unsafe.Pointer,
		mask uint32,
		cb uintptr, // int (*)(unsigned, void*, void*, void*)
		ctx uintptr, // void*
	) int32
	c_sqlite3_progress_handler func(
		db unsafe.Pointer,
		n int32,
		cb uintptr, // int (*)(void*)
		arg uintptr, // void*
	)
	c_sqlite3_create_function_v2 func(
		db unsafe.Pointer,
		name string, // const char*
		nArg int32,
		textRep int32,
		app uintptr, // void*
		xFunc uintptr,
		xStep uintptr,
		xFinal uintptr,
		xDestroy uintptr,
	) int32

	c_sqlite3_prepare func(
		db unsafe.Pointer,
		sql unsafe.Pointer, // const char*
		nByte int32,
		stmt unsafe.Pointer, // sqlite3_stmt**
		tail unsafe.Pointer, // const char**
	) int32
	c_sqlite3_step              func(stmt unsafe.Pointer) int32
	c_sqlite3_reset             func(stmt unsafe.Pointer) int32
	c_sqlite3_finalize          func(stmt unsafe.Pointer) int32
	c_sqlite3_clear_bindings    func(stmt unsafe.Pointer) int32
	c_sqlite3_transfer_bindings func(from unsafe.Pointer, to unsafe.Pointer) int32
	c_sqlite3_sql               func(stmt unsafe.Pointer) string
	c_sqlite3_expanded_sql      func(stmt unsafe.Pointer) unsafe.Pointer // char*, owned by caller
	c_sqlite3_stmt_readonly     func(stmt unsafe.Pointer) int32
	c_sqlite3_stmt_busy         func(stmt unsafe.Pointer) int32

	c_sqlite3_bind_parameter_count func(stmt unsafe.Pointer) int32
	c_sqlite3_bind_parameter_index func(stmt unsafe.Pointer, name string) int32
	c_sqlite3_bind_parameter_name  func(stmt unsafe.Pointer, pos int32) unsafe.Pointer
	c_sqlite3_bind_null            func(stmt unsafe.Pointer, pos int32) int32
	c_sqlite3_bind_int             func(stmt unsafe.Pointer, pos int32, value int32) int32
	c_sqlite3_bind_int64           func(stmt unsafe.Pointer, pos int32, value int64) int32
	c_sqlite3_bind_double          func(stmt unsafe.Pointer, pos int32, value float64) int32
	c_sqlite3_bind_text            func(stmt unsafe.Pointer, pos int32, ptr unsafe.Pointer, n int32, destructor uintptr) int32
	c_sqlite3_bind_blob            func(stmt unsafe.Pointer, pos int32, ptr unsafe.Pointer, n int32, destructor uintptr) int32
	c_sqlite3_bind_blob64          func(stmt unsafe.Pointer, pos int32, ptr unsafe.Pointer, n uint64, destructor uintptr) int32
	c_sqlite3_bind_zeroblob        func(stmt unsafe.Pointer, pos int32, n int32) int32
	c_sqlite3_bind_value           func(stmt unsafe.Pointer, pos int32, value unsafe.Pointer) int32

	c_sqlite3_column_count    func(stmt unsafe.Pointer) int32
	c_sqlite3_data_count      func(stmt unsafe.Pointer) int32
	c_sqlite3_column_type     func(stmt unsafe.Pointer, i int32) int32
	c_sqlite3_column_int64    func(stmt unsafe.Pointer, i int32) int64
	c_sqlite3_column_double   func(stmt unsafe.Pointer, i int32) float64
	c_sqlite3_column_text     func(stmt unsafe.Pointer, i int32) unsafe.Pointer
	c_sqlite3_column_blob     func(stmt unsafe.Pointer, i int32) unsafe.Pointer
	c_sqlite3_column_bytes    func(stmt unsafe.Pointer, i int32) int32
	c_sqlite3_column_name     func(stmt unsafe.Pointer, i int32) string
	c_sqlite3_column_decltype func(stmt unsafe.Pointer, i int32) string

	c_sqlite3_user_data       func(ctx unsafe.Pointer) uintptr
	c_sqlite3_result_null     func(ctx unsafe.Pointer)
	c_sqlite3_result_int      func(ctx unsafe.Pointer, value int32)
	c_sqlite3_result_int64    func(ctx unsafe.Pointer, value int64)
	c_sqlite3_result_double   func(ctx unsafe.Pointer, value float64)
	c_sqlite3_result_text     func(ctx unsafe.Pointer, ptr unsafe.Pointer, n int32, destructor uintptr)
	c_sqlite3_result_blob     func(ctx unsafe.Pointer, ptr unsafe.Pointer, n int32, destructor uintptr)
	c_sqlite3_result_zeroblob func(ctx unsafe.Pointer, n int32)
	c_sqlite3_result_value    func(ctx unsafe.Pointer, value unsafe.Pointer)
	c_sqlite3_result_error    func(ctx unsafe.Pointer, msg string, n int32)

	c_sqlite3_value_type   func(value unsafe.Pointer) int32
	c_sqlite3_value_int64  func(value unsafe.Pointer) int64
	c_sqlite3_value_double func(value unsafe.Pointer) float64
	c_sqlite3_value_text   func(value unsafe.Pointer) unsafe.Pointer
	c_sqlite3_value_blob   func(value unsafe.Pointer) unsafe.Pointer
	c_sqlite3_value_bytes  func(value unsafe.Pointer) int32

	c_sqlite3_blob_open func(
		db unsafe.Pointer,
		dbName string,
		table string,
		column string,
		row int64,
		flags int32,
		blob unsafe.Pointer, // sqlite3_blob**
	) int32
	c_sqlite3_blob_close  func(blob unsafe.Pointer) int32
	c_sqlite3_blob_bytes  func(blob unsafe.Pointer) int32
	c_sqlite3_blob_reopen func(blob unsafe.Pointer, row int64) int32
	c_sqlite3_blob_read   func(blob unsafe.Pointer, p unsafe.Pointer, n int32, off int32) int32
	c_sqlite3_blob_write  func(blob unsafe.Pointer, p unsafe.Pointer, n int32, off int32) int32
)

// implement a function to register extern methods from loaded lib
// DO NOT load lib - as it will be done externally
func register_sqlite3_db(handle uintptr) (err error) {
	// purego panics when a symbol is missing; report that as a load error instead
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register sqlite3 symbols: %v", r)
		}
	}()
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_libversion_number, handle, "sqlite3_libversion_number")
	purego.RegisterLibFunc(&c_sqlite3_sourceid, handle, "sqlite3_sourceid")
	purego.RegisterLibFunc(&c_sqlite3_complete, handle, "sqlite3_complete")
	purego.RegisterLibFunc(&c_sqlite3_sleep, handle, "sqlite3_sleep")
	purego.RegisterLibFunc(&c_sqlite3_compileoption_get, handle, "sqlite3_compileoption_get")
	purego.RegisterLibFunc(&c_sqlite3_errstr, handle, "sqlite3_errstr")
	purego.RegisterLibFunc(&c_sqlite3_free, handle, "sqlite3_free")

	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close, handle, "sqlite3_close")
	purego.RegisterLibFunc(&c_sqlite3_errcode, handle, "sqlite3_errcode")
	purego.RegisterLibFunc(&c_sqlite3_extended_errcode, handle, "sqlite3_extended_errcode")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_interrupt, handle, "sqlite3_interrupt")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_changes, handle, "sqlite3_changes")
	purego.RegisterLibFunc(&c_sqlite3_total_changes, handle, "sqlite3_total_changes")
	purego.RegisterLibFunc(&c_sqlite3_get_autocommit, handle, "sqlite3_get_autocommit")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_busy_handler, handle, "sqlite3_busy_handler")
	purego.RegisterLibFunc(&c_sqlite3_trace_v2, handle, "sqlite3_trace_v2")
	purego.RegisterLibFunc(&c_sqlite3_progress_handler, handle, "sqlite3_progress_handler")
	purego.RegisterLibFunc(&c_sqlite3_create_function_v2, handle, "sqlite3_create_function_v2")

	purego.RegisterLibFunc(&c_sqlite3_prepare, handle, "sqlite3_prepare")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_clear_bindings, handle, "sqlite3_clear_bindings")
	purego.RegisterLibFunc(&c_sqlite3_transfer_bindings, handle, "sqlite3_transfer_bindings")
	purego.RegisterLibFunc(&c_sqlite3_sql, handle, "sqlite3_sql")
	purego.RegisterLibFunc(&c_sqlite3_expanded_sql, handle, "sqlite3_expanded_sql")
	purego.RegisterLibFunc(&c_sqlite3_stmt_readonly, handle, "sqlite3_stmt_readonly")
	purego.RegisterLibFunc(&c_sqlite3_stmt_busy, handle, "sqlite3_stmt_busy")

	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_count, handle, "sqlite3_bind_parameter_count")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_index, handle, "sqlite3_bind_parameter_index")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_name, handle, "sqlite3_bind_parameter_name")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_bind_int, handle, "sqlite3_bind_int")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_text, handle, "sqlite3_bind_text")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob, handle, "sqlite3_bind_blob")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob64, handle, "sqlite3_bind_blob64")
	purego.RegisterLibFunc(&c_sqlite3_bind_zeroblob, handle, "sqlite3_bind_zeroblob")
	purego.RegisterLibFunc(&c_sqlite3_bind_value, handle, "sqlite3_bind_value")

	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_data_count, handle, "sqlite3_data_count")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_decltype, handle, "sqlite3_column_decltype")

	purego.RegisterLibFunc(&c_sqlite3_user_data, handle, "sqlite3_user_data")
	purego.RegisterLibFunc(&c_sqlite3_result_null, handle, "sqlite3_result_null")
	purego.RegisterLibFunc(&c_sqlite3_result_int, handle, "sqlite3_result_int")
	purego.RegisterLibFunc(&c_sqlite3_result_int64, handle, "sqlite3_result_int64")
	purego.RegisterLibFunc(&c_sqlite3_result_double, handle, "sqlite3_result_double")
	purego.RegisterLibFunc(&c_sqlite3_result_text, handle, "sqlite3_result_text")
	purego.RegisterLibFunc(&c_sqlite3_result_blob, handle, "sqlite3_result_blob")
	purego.RegisterLibFunc(&c_sqlite3_result_zeroblob, handle, "sqlite3_result_zeroblob")
	purego.RegisterLibFunc(&c_sqlite3_result_value, handle, "sqlite3_result_value")
	purego.RegisterLibFunc(&c_sqlite3_result_error, handle, "sqlite3_result_error")

	purego.RegisterLibFunc(&c_sqlite3_value_type, handle, "sqlite3_value_type")
	purego.RegisterLibFunc(&c_sqlite3_value_int64, handle, "sqlite3_value_int64")
	purego.RegisterLibFunc(&c_sqlite3_value_double, handle, "sqlite3_value_double")
	purego.RegisterLibFunc(&c_sqlite3_value_text, handle, "sqlite3_value_text")
	purego.RegisterLibFunc(&c_sqlite3_value_blob, handle, "sqlite3_value_blob")
	purego.RegisterLibFunc(&c_sqlite3_value_bytes, handle, "sqlite3_value_bytes")

	purego.RegisterLibFunc(&c_sqlite3_blob_open, handle, "sqlite3_blob_open")
	purego.RegisterLibFunc(&c_sqlite3_blob_close, handle, "sqlite3_blob_close")
	purego.RegisterLibFunc(&c_sqlite3_blob_bytes, handle, "sqlite3_blob_bytes")
	purego.RegisterLibFunc(&c_sqlite3_blob_reopen, handle, "sqlite3_blob_reopen")
	purego.RegisterLibFunc(&c_sqlite3_blob_read, handle, "sqlite3_blob_read")
	purego.RegisterLibFunc(&c_sqlite3_blob_write, handle, "sqlite3_blob_write")
	return nil
}

// Helpers

// readOwnedString copies a string allocated by the engine and releases it with sqlite3_free.
func readOwnedString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	defer c_sqlite3_free(p)
	return copyCString(p)
}

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// copyBytes returns a fresh Go slice with n bytes read from engine memory.
// The result is never nil so that empty TEXT/BLOB stay distinguishable from NULL.
func copyBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

func cStringPtr(s string) (ptr unsafe.Pointer, keepAlive func()) {
	// Allocate Go memory with null terminator; valid during the call
	if len(s) == 0 {
		return nil, func() {}
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return unsafe.Pointer(&b[0]), func() { runtime.KeepAlive(b) }
}

// Go wrappers over imported C bindings

func sqlite3_libversion() string { return c_sqlite3_libversion() }

func sqlite3_libversion_number() int { return int(c_sqlite3_libversion_number()) }

func sqlite3_sourceid() string { return c_sqlite3_sourceid() }

func sqlite3_errstr(code Code) string { return c_sqlite3_errstr(int32(code)) }

/** Open a database connection; on failure the half-opened handle is closed */
func sqlite3_open_v2(filename string, flags int32, vfs string) (sqliteDB, error) {
	var db sqliteDB
	vfsPtr, keepVfs := cStringPtr(vfs)
	code := Code(c_sqlite3_open_v2(filename, unsafe.Pointer(&db), flags, vfsPtr))
	keepVfs()
	if code != SQLITE_OK {
		msg := ""
		if db != nil {
			msg = c_sqlite3_errmsg(unsafe.Pointer(db))
			c_sqlite3_close(unsafe.Pointer(db)) // ignore status here
		}
		return nil, statusToError(code, msg)
	}
	return db, nil
}

func sqlite3_close(db sqliteDB) Code { return Code(c_sqlite3_close(unsafe.Pointer(db))) }

/** Last error of the connection: primary code, extended code and message */
func sqlite3_last_error(db sqliteDB) (Code, Code, string) {
	p := unsafe.Pointer(db)
	return Code(c_sqlite3_errcode(p)), Code(c_sqlite3_extended_errcode(p)), c_sqlite3_errmsg(p)
}

/** Compile the first statement of sql[offset:]
 * Returns a nil statement if the text holds no executable statement,
 * together with the absolute offset of the unconsumed tail.
 */
func sqlite3_prepare(db sqliteDB, sql string, offset int) (sqliteStmt, int, Code) {
	rest := sql[offset:]
	if len(rest) > sqlite_max_int_size {
		return nil, offset, SQLITE_TOOBIG
	}
	buf := make([]byte, len(rest)+1)
	copy(buf, rest)
	base := unsafe.Pointer(&buf[0])
	var stmt sqliteStmt
	var tail unsafe.Pointer
	code := Code(c_sqlite3_prepare(
		unsafe.Pointer(db),
		base,
		int32(len(rest)),
		unsafe.Pointer(&stmt),
		unsafe.Pointer(&tail),
	))
	consumed := len(rest)
	if tail != nil {
		consumed = int(uintptr(tail) - uintptr(base))
	}
	runtime.KeepAlive(buf)
	if code != SQLITE_OK {
		if stmt != nil {
			c_sqlite3_finalize(unsafe.Pointer(stmt))
		}
		return nil, offset, code
	}
	return stmt, offset + consumed, SQLITE_OK
}

func sqlite3_step(self sqliteStmt) Code { return Code(c_sqlite3_step(unsafe.Pointer(self))) }

func sqlite3_reset(self sqliteStmt) Code { return Code(c_sqlite3_reset(unsafe.Pointer(self))) }

/** Finalize a statement
 * SAFETY: caller must ensure that no other code can later call methods over finalized statement
 */
func sqlite3_finalize(self sqliteStmt) Code {
	if self == nil {
		return SQLITE_OK
	}
	return Code(c_sqlite3_finalize(unsafe.Pointer(self)))
}

func sqlite3_transfer_bindings(from, to sqliteStmt) Code {
	return Code(c_sqlite3_transfer_bindings(unsafe.Pointer(from), unsafe.Pointer(to)))
}

/** Statement text with bound parameters expanded; the engine buffer is freed here */
func sqlite3_expanded_sql(self sqliteStmt) string {
	return readOwnedString(c_sqlite3_expanded_sql(unsafe.Pointer(self)))
}

/** Name of the parameter at the 1-based position, empty for nameless parameters */
func sqlite3_bind_parameter_name(self sqliteStmt, pos int) string {
	return copyCString(c_sqlite3_bind_parameter_name(unsafe.Pointer(self), int32(pos)))
}

/** Bind TEXT, copied by the engine before return */
func sqlite3_bind_text(self sqliteStmt, pos int, value []byte) Code {
	if len(value) > sqlite_max_int_size {
		return SQLITE_TOOBIG
	}
	ptr := unsafe.Pointer(&emptyText[0])
	if len(value) > 0 {
		ptr = unsafe.Pointer(&value[0])
	}
	code := Code(c_sqlite3_bind_text(unsafe.Pointer(self), int32(pos), ptr, int32(len(value)), sqlite_transient))
	runtime.KeepAlive(value)
	return code
}

/** Bind BLOB, copied by the engine before return; empty input binds a zero-length blob */
func sqlite3_bind_blob(self sqliteStmt, pos int, value []byte) Code {
	if len(value) == 0 {
		return Code(c_sqlite3_bind_zeroblob(unsafe.Pointer(self), int32(pos), 0))
	}
	if len(value) > sqlite_max_int_size {
		return SQLITE_TOOBIG
	}
	code := Code(c_sqlite3_bind_blob(unsafe.Pointer(self), int32(pos), unsafe.Pointer(&value[0]), int32(len(value)), sqlite_transient))
	runtime.KeepAlive(value)
	return code
}

/** Bind BLOB by reference; destructor is invoked by the engine once it drops the buffer */
func sqlite3_bind_blob_nocopy(self sqliteStmt, pos int, ptr unsafe.Pointer, n int, destructor uintptr) Code {
	return Code(c_sqlite3_bind_blob64(unsafe.Pointer(self), int32(pos), ptr, uint64(n), destructor))
}

/** Return TEXT or BLOB column as a Go byte slice (copied)
 * The pointer is fetched before the byte count, as the engine requires.
 */
func sqlite3_column_bytes_copy(self sqliteStmt, i int, text bool) []byte {
	var ptr unsafe.Pointer
	if text {
		ptr = c_sqlite3_column_text(unsafe.Pointer(self), int32(i))
	} else {
		ptr = c_sqlite3_column_blob(unsafe.Pointer(self), int32(i))
	}
	n := c_sqlite3_column_bytes(unsafe.Pointer(self), int32(i))
	return copyBytes(ptr, int(n))
}

/** Return TEXT or BLOB function argument as a Go byte slice (copied) */
func sqlite3_value_bytes_copy(self sqliteValue, text bool) []byte {
	var ptr unsafe.Pointer
	if text {
		ptr = c_sqlite3_value_text(unsafe.Pointer(self))
	} else {
		ptr = c_sqlite3_value_blob(unsafe.Pointer(self))
	}
	n := c_sqlite3_value_bytes(unsafe.Pointer(self))
	return copyBytes(ptr, int(n))
}

func sqlite3_result_text(ctx sqliteContext, value []byte) {
	if len(value) > sqlite_max_int_size {
		c_sqlite3_result_error(unsafe.Pointer(ctx), "string or blob too big", -1)
		return
	}
	ptr := unsafe.Pointer(&emptyText[0])
	if len(value) > 0 {
		ptr = unsafe.Pointer(&value[0])
	}
	c_sqlite3_result_text(unsafe.Pointer(ctx), ptr, int32(len(value)), sqlite_transient)
	runtime.KeepAlive(value)
}

func sqlite3_result_blob(ctx sqliteContext, value []byte) {
	if len(value) == 0 {
		c_sqlite3_result_zeroblob(unsafe.Pointer(ctx), 0)
		return
	}
	if len(value) > sqlite_max_int_size {
		c_sqlite3_result_error(unsafe.Pointer(ctx), "string or blob too big", -1)
		return
	}
	c_sqlite3_result_blob(unsafe.Pointer(ctx), unsafe.Pointer(&value[0]), int32(len(value)), sqlite_transient)
	runtime.KeepAlive(value)
}

/** Collect compile-time options until the engine returns NULL */
func sqlite3_compileoptions() []string {
	var opts []string
	for i := int32(0); ; i++ {
		p := c_sqlite3_compileoption_get(i)
		if p == nil {
			return opts
		}
		opts = append(opts, copyCString(p))
	}
}

func sqlite3_blob_open(db sqliteDB, dbName, table, column string, row int64, writable bool) (sqliteBlob, Code) {
	var blob sqliteBlob
	flags := int32(0)
	if writable {
		flags = sqlite_blob_rw
	}
	code := Code(c_sqlite3_blob_open(unsafe.Pointer(db), dbName, table, column, row, flags, unsafe.Pointer(&blob)))
	if code != SQLITE_OK {
		if blob != nil {
			c_sqlite3_blob_close(unsafe.Pointer(blob))
		}
		return nil, code
	}
	return blob, SQLITE_OK
}

func sqlite3_blob_read(self sqliteBlob, p []byte, off int) Code {
	code := Code(c_sqlite3_blob_read(unsafe.Pointer(self), unsafe.Pointer(&p[0]), int32(len(p)), int32(off)))
	runtime.KeepAlive(p)
	return code
}

func sqlite3_blob_write(self sqliteBlob, p []byte, off int) Code {
	code := Code(c_sqlite3_blob_write(unsafe.Pointer(self), unsafe.Pointer(&p[0]), int32(len(p)), int32(off)))
	runtime.KeepAlive(p)
	return code
}
