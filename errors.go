package mlsqlite

import (
	"errors"
	"fmt"
)

// Sentinels for the engine result codes. An *Error matches the sentinel of its
// primary code with errors.Is.
var (
	ErrGeneric       = errors.New("sqlite: SQL error or missing database")
	ErrInternal      = errors.New("sqlite: internal logic error")
	ErrPerm          = errors.New("sqlite: access permission denied")
	ErrAbort         = errors.New("sqlite: callback requested abort")
	ErrBusy          = errors.New("sqlite: database is busy")
	ErrLocked        = errors.New("sqlite: database table is locked")
	ErrNoMem         = errors.New("sqlite: out of memory")
	ErrReadOnly      = errors.New("sqlite: attempt to write a readonly database")
	ErrInterrupted   = errors.New("sqlite: operation interrupted")
	ErrIO            = errors.New("sqlite: disk I/O error")
	ErrCorrupt       = errors.New("sqlite: database disk image is malformed")
	ErrNotFound      = errors.New("sqlite: not found")
	ErrFull          = errors.New("sqlite: database or disk is full")
	ErrCantOpen      = errors.New("sqlite: unable to open database file")
	ErrProtocol      = errors.New("sqlite: locking protocol error")
	ErrSchemaChanged = errors.New("sqlite: database schema has changed")
	ErrTooBig        = errors.New("sqlite: string or blob too big")
	ErrConstraint    = errors.New("sqlite: constraint failed")
	ErrMismatch      = errors.New("sqlite: datatype mismatch")
	ErrMisuse        = errors.New("sqlite: library routine called out of sequence")
	ErrAuth          = errors.New("sqlite: authorization denied")
	ErrRange         = errors.New("sqlite: bind or column index out of range")
	ErrNotADB        = errors.New("sqlite: file is not a database")
)

// Binding-level failure kinds with no engine code of their own.
var (
	ErrClosed                  = errors.New("sqlite: handle is closed")
	ErrBind                    = errors.New("sqlite: parameter binding failed")
	ErrRecompileFailed         = errors.New("sqlite: statement recompilation failed")
	ErrSchemaChangedRepeatedly = errors.New("sqlite: schema changed repeatedly during execution")
)

var codeSentinels = map[Code]error{
	SQLITE_ERROR:      ErrGeneric,
	SQLITE_INTERNAL:   ErrInternal,
	SQLITE_PERM:       ErrPerm,
	SQLITE_ABORT:      ErrAbort,
	SQLITE_BUSY:       ErrBusy,
	SQLITE_LOCKED:     ErrLocked,
	SQLITE_NOMEM:      ErrNoMem,
	SQLITE_READONLY:   ErrReadOnly,
	SQLITE_INTERRUPT:  ErrInterrupted,
	SQLITE_IOERR:      ErrIO,
	SQLITE_CORRUPT:    ErrCorrupt,
	SQLITE_NOTFOUND:   ErrNotFound,
	SQLITE_FULL:       ErrFull,
	SQLITE_CANTOPEN:   ErrCantOpen,
	SQLITE_PROTOCOL:   ErrProtocol,
	SQLITE_SCHEMA:     ErrSchemaChanged,
	SQLITE_TOOBIG:     ErrTooBig,
	SQLITE_CONSTRAINT: ErrConstraint,
	SQLITE_MISMATCH:   ErrMismatch,
	SQLITE_MISUSE:     ErrMisuse,
	SQLITE_AUTH:       ErrAuth,
	SQLITE_RANGE:      ErrRange,
	SQLITE_NOTADB:     ErrNotADB,
}

// Error is returned by every failing engine call.
//
// Code is the primary result code and ExtendedCode the extended one when the engine
// reported it. Out-of-range positions are reported as SQLITE_RANGE and additionally
// match ErrMisuse, since they are caller mistakes rather than engine faults.
type Error struct {
	Code         Code
	ExtendedCode Code
	Message      string
	// Op names the failing operation, e.g. "prepare", "step" or "bind".
	Op string

	kind  error
	cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	prefix := "sqlite"
	if e.Op != "" {
		prefix = "sqlite " + e.Op
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap exposes the failure kind, the sentinel of the engine code and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 4)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if sentinel, ok := codeSentinels[e.Code.Primary()]; ok {
		errs = append(errs, sentinel)
	}
	if e.Code.Primary() == SQLITE_RANGE {
		errs = append(errs, ErrMisuse)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// statusToError maps a non-OK status to *Error; OK, ROW and DONE map to nil.
func statusToError(code Code, msg string) error {
	switch code.Primary() {
	case SQLITE_OK, SQLITE_ROW, SQLITE_DONE:
		return nil
	}
	return &Error{Code: code.Primary(), ExtendedCode: code, Message: msg}
}

func misuseError(op, msg string) error {
	return &Error{Code: SQLITE_MISUSE, ExtendedCode: SQLITE_MISUSE, Message: msg, Op: op}
}

func closedError(op, what string) error {
	return &Error{Code: SQLITE_MISUSE, ExtendedCode: SQLITE_MISUSE, Message: what + " is closed", Op: op, kind: ErrClosed}
}
