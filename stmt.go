package mlsqlite

import (
	"unsafe"

	"go.uber.org/zap"
)

// StepResult is the outcome of a successful Step.
type StepResult int

const (
	// Row means a result row is available through Column and Row.
	Row StepResult = iota + 1
	// Done means the statement ran to completion.
	Done
)

func (r StepResult) String() string {
	switch r {
	case Row:
		return "ROW"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}

// Stmt is a compiled statement.
//
// Statements are compiled with the legacy interface: when the schema changes
// under a statement, Step recompiles it from its original text, moves the
// bindings over and retries, up to the connection's retry limit.
type Stmt struct {
	conn   *Conn
	handle sqliteStmt // nil once finalized, or while being recompiled
	sql    string
	offset int
	tail   int

	finalized bool
}

// Prepare compiles the first statement of sql starting at byte offset.
// It returns the absolute offset just past the compiled statement; when the rest
// of sql holds no statement (whitespace or comments only) the *Stmt is nil.
func (c *Conn) Prepare(sql string, offset int) (*Stmt, int, error) {
	db, err := c.dbHandle("prepare")
	if err != nil {
		return nil, offset, err
	}
	if offset < 0 || offset > len(sql) {
		return nil, offset, misuseError("prepare", "offset out of range")
	}
	h, tail, code := sqlite3_prepare(db, sql, offset)
	if code != SQLITE_OK {
		return nil, offset, c.lastError("prepare", code)
	}
	if h == nil {
		return nil, tail, nil
	}
	s := &Stmt{conn: c, handle: h, sql: sql, offset: offset, tail: tail}
	c.track(s)
	return s, tail, nil
}

// stmtHandle returns the engine handle, or why the statement cannot be used.
func (s *Stmt) stmtHandle(op string) (sqliteStmt, error) {
	if s.finalized {
		return nil, closedError(op, "statement")
	}
	if _, err := s.conn.dbHandle(op); err != nil {
		return nil, err
	}
	if s.handle == nil {
		return nil, misuseError(op, "statement is expired")
	}
	return s.handle, nil
}

// Conn returns the connection the statement belongs to.
func (s *Stmt) Conn() *Conn { return s.conn }

// Step advances the statement.
//
// The specific error code is recovered with a reset, so after an error the
// statement is back at its start with bindings kept.
func (s *Stmt) Step() (StepResult, error) {
	h, err := s.stmtHandle("step")
	if err != nil {
		return 0, err
	}
	for retries := 0; ; retries++ {
		code := sqlite3_step(h)
		switch code {
		case SQLITE_ROW:
			return Row, nil
		case SQLITE_DONE:
			return Done, nil
		case SQLITE_ERROR:
			code = sqlite3_reset(h)
		}
		if code.Primary() != SQLITE_SCHEMA {
			if code == SQLITE_OK {
				code = SQLITE_ERROR
			}
			return 0, s.conn.lastError("step", code)
		}
		if retries >= s.conn.maxSchemaRetries {
			e := s.conn.lastError("step", code).(*Error)
			e.kind = ErrSchemaChangedRepeatedly
			return 0, e
		}
		if h, err = s.recompile(); err != nil {
			return 0, err
		}
	}
}

// recompile swaps in a freshly compiled handle carrying the old bindings.
// On failure the statement ends up finalized, never half-swapped.
func (s *Stmt) recompile() (sqliteStmt, error) {
	old := s.handle
	s.handle = nil

	fail := func(cause error) (sqliteStmt, error) {
		sqlite3_finalize(old)
		s.finalized = true
		s.conn.untrack(s)
		s.conn.logger.Debug("statement recompilation failed", zap.String("sql", s.text()), zap.Error(cause))
		e := &Error{Code: SQLITE_ERROR, ExtendedCode: SQLITE_ERROR, Op: "recompile", kind: ErrRecompileFailed, cause: cause}
		if ce, ok := cause.(*Error); ok {
			e.Code, e.ExtendedCode, e.Message = ce.Code, ce.ExtendedCode, "statement could not be recompiled"
		}
		return nil, e
	}

	h, _, code := sqlite3_prepare(s.conn.handle, s.sql, s.offset)
	if code != SQLITE_OK {
		return fail(s.conn.lastError("prepare", code))
	}
	if h == nil {
		return fail(misuseError("prepare", "statement text no longer compiles to a statement"))
	}
	if code := sqlite3_transfer_bindings(old, h); code != SQLITE_OK {
		sqlite3_finalize(h)
		return fail(s.conn.lastError("transfer bindings", code))
	}
	sqlite3_finalize(old)
	s.handle = h
	s.conn.logger.Debug("statement recompiled after schema change", zap.String("sql", s.text()))
	return h, nil
}

// TransferBindings moves every binding of s onto to. Both statements must
// belong to the same connection and take the same number of parameters; the
// parameters of s are NULL afterwards.
func (s *Stmt) TransferBindings(to *Stmt) error {
	from, err := s.stmtHandle("transfer bindings")
	if err != nil {
		return err
	}
	dst, err := to.stmtHandle("transfer bindings")
	if err != nil {
		return err
	}
	if to.conn != s.conn {
		return misuseError("transfer bindings", "statements belong to different connections")
	}
	if code := sqlite3_transfer_bindings(from, dst); code != SQLITE_OK {
		return s.conn.lastError("transfer bindings", code)
	}
	return nil
}

// Reset rewinds the statement so it can run again. Bindings are kept.
// The outcome of the previous run was already reported by Step, so the engine
// status of the reset is not.
func (s *Stmt) Reset() error {
	h, err := s.stmtHandle("reset")
	if err != nil {
		return err
	}
	sqlite3_reset(h)
	return nil
}

// Finalize releases the statement. It is safe to call more than once.
func (s *Stmt) Finalize() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	s.conn.untrack(s)
	h := s.handle
	s.handle = nil
	// the status repeats the last Step error, which was already reported
	sqlite3_finalize(h)
	return nil
}

// Close is Finalize, for io.Closer.
func (s *Stmt) Close() error { return s.Finalize() }

// Finalized reports whether Finalize was called or recompilation failed.
func (s *Stmt) Finalized() bool { return s.finalized }

// Expired reports whether the statement lost its compiled handle without being
// finalized, which is only observable while a recompilation is in progress.
func (s *Stmt) Expired() bool { return !s.finalized && s.handle == nil }

// Tail returns the offset just past this statement in its source text.
func (s *Stmt) Tail() int { return s.tail }

// Exec binds args, runs the statement to completion, discarding rows, and
// resets it.
func (s *Stmt) Exec(args ...Value) error {
	if len(args) > 0 {
		if err := s.BindAll(args...); err != nil {
			return err
		}
	}
	for {
		r, err := s.Step()
		if err != nil {
			return err
		}
		if r == Done {
			return s.Reset()
		}
	}
}

// SQL returns the text the statement was compiled from.
func (s *Stmt) SQL() string {
	return s.text()
}

func (s *Stmt) text() string {
	return s.sql[s.offset:s.tail]
}

// ExpandedSQL returns the statement text with current bindings substituted.
func (s *Stmt) ExpandedSQL() (string, error) {
	h, err := s.stmtHandle("expanded sql")
	if err != nil {
		return "", err
	}
	return sqlite3_expanded_sql(h), nil
}

// ReadOnly reports whether the statement makes no direct changes to the database.
func (s *Stmt) ReadOnly() bool {
	h, err := s.stmtHandle("readonly")
	if err != nil {
		return false
	}
	return c_sqlite3_stmt_readonly(unsafe.Pointer(h)) != 0
}

// Busy reports whether the statement has been stepped but not run to completion or reset.
func (s *Stmt) Busy() bool {
	h, err := s.stmtHandle("busy")
	if err != nil {
		return false
	}
	return c_sqlite3_stmt_busy(unsafe.Pointer(h)) != 0
}
