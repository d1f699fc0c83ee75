package mlsqlite

import (
	"unsafe"

	"go.uber.org/zap"
)

// BusyAction is a busy handler's verdict.
type BusyAction int

const (
	// BusyFail gives up; the blocked call fails with ErrBusy or ErrLocked.
	BusyFail BusyAction = iota
	// BusyRetry asks the engine to try acquiring the lock again.
	BusyRetry
)

// BusyHandler is consulted when a lock cannot be acquired. count is the number of
// times it has already been invoked for the same locking event.
//
// A returned error is treated as BusyFail and logged at debug level.
// The handler must not use its connection; such calls fail with ErrMisuse.
type BusyHandler interface {
	HandleBusy(count int) (BusyAction, error)
}

// TraceHandler receives the text of every statement as it starts running, with
// bound parameters expanded. Trigger programs are reported by their "--" comment.
// Errors are logged and otherwise ignored.
type TraceHandler interface {
	HandleTrace(sql string) error
}

// ProgressHandler is invoked periodically during long-running statements.
// Returning an error aborts the statement with ErrInterrupted; the handler's
// error is wrapped into it. The handler must not use its connection.
type ProgressHandler interface {
	HandleProgress() error
}

type BusyFunc func(count int) (BusyAction, error)

func (f BusyFunc) HandleBusy(count int) (BusyAction, error) { return f(count) }

type TraceFunc func(sql string) error

func (f TraceFunc) HandleTrace(sql string) error { return f(sql) }

type ProgressFunc func() error

func (f ProgressFunc) HandleProgress() error { return f() }

// LogTracer returns a TraceHandler logging each statement at debug level.
func LogTracer(l *zap.Logger) TraceHandler {
	return TraceFunc(func(sql string) error {
		l.Debug("sqlite statement", zap.String("sql", sql))
		return nil
	})
}

// RetryBusy returns a BusyHandler retrying up to n times.
func RetryBusy(n int) BusyHandler {
	return BusyFunc(func(count int) (BusyAction, error) {
		if count < n {
			return BusyRetry, nil
		}
		return BusyFail, nil
	})
}

// SetBusyHandler installs h, replacing the previous handler and any busy timeout.
// A nil h removes the handler at the engine level.
func (c *Conn) SetBusyHandler(h BusyHandler) error {
	db, err := c.dbHandle("busy handler")
	if err != nil {
		return err
	}
	var code Code
	if h == nil {
		code = Code(c_sqlite3_busy_handler(unsafe.Pointer(db), 0, 0))
	} else {
		code = Code(c_sqlite3_busy_handler(unsafe.Pointer(db), busyTrampoline, c.token))
	}
	if code != SQLITE_OK {
		return c.lastError("busy handler", code)
	}
	c.busy = h
	return nil
}

// SetTraceHandler installs h for statement tracing; nil stops tracing.
func (c *Conn) SetTraceHandler(h TraceHandler) error {
	db, err := c.dbHandle("trace")
	if err != nil {
		return err
	}
	var code Code
	if h == nil {
		code = Code(c_sqlite3_trace_v2(unsafe.Pointer(db), 0, 0, 0))
	} else {
		code = Code(c_sqlite3_trace_v2(unsafe.Pointer(db), sqlite_trace_stmt, traceTrampoline, c.token))
	}
	if code != SQLITE_OK {
		return c.lastError("trace", code)
	}
	c.trace = h
	return nil
}

// SetProgressHandler installs h to be called every n virtual machine instructions.
// A nil h or n < 1 removes the handler.
func (c *Conn) SetProgressHandler(n int, h ProgressHandler) error {
	db, err := c.dbHandle("progress handler")
	if err != nil {
		return err
	}
	if h == nil || n < 1 {
		c_sqlite3_progress_handler(unsafe.Pointer(db), 0, 0, 0)
		c.progress = nil
		return nil
	}
	c_sqlite3_progress_handler(unsafe.Pointer(db), int32(n), progressTrampoline, c.token)
	c.progress = h
	return nil
}
