package mlsqlite

import (
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// OpenFlags are the sqlite3_open_v2 flags.
type OpenFlags int32

const (
	OpenReadOnly     OpenFlags = 0x00000001
	OpenReadWrite    OpenFlags = 0x00000002
	OpenCreate       OpenFlags = 0x00000004
	OpenURI          OpenFlags = 0x00000040
	OpenMemory       OpenFlags = 0x00000080
	OpenNoMutex      OpenFlags = 0x00008000
	OpenFullMutex    OpenFlags = 0x00010000
	OpenSharedCache  OpenFlags = 0x00020000
	OpenPrivateCache OpenFlags = 0x00040000
)

// ClosePolicy decides what Close does with statements that are still live.
type ClosePolicy int

const (
	// CloseStrict leaves live statements alone; the engine then refuses to close
	// and Close fails with ErrBusy.
	CloseStrict ClosePolicy = iota
	// CloseFinalize finalizes live statements and open blobs before closing.
	CloseFinalize
)

// DefaultMaxSchemaRetries bounds in-place recompilations within a single Step.
const DefaultMaxSchemaRetries = 16

type OpenConfig struct {
	Flags            OpenFlags
	Vfs              string
	ClosePolicy      ClosePolicy
	BusyTimeout      time.Duration
	MaxSchemaRetries int
	Logger           *zap.Logger
}

type OpenOption func(*OpenConfig)

// WithFlags replaces the default OpenReadWrite|OpenCreate flags.
func WithFlags(flags OpenFlags) OpenOption {
	return func(c *OpenConfig) { c.Flags = flags }
}

func WithVfs(name string) OpenOption {
	return func(c *OpenConfig) { c.Vfs = name }
}

func WithClosePolicy(p ClosePolicy) OpenOption {
	return func(c *OpenConfig) { c.ClosePolicy = p }
}

// WithBusyTimeout installs the engine's sleeping busy handler right after open.
func WithBusyTimeout(d time.Duration) OpenOption {
	return func(c *OpenConfig) { c.BusyTimeout = d }
}

func WithMaxSchemaRetries(n int) OpenOption {
	return func(c *OpenConfig) { c.MaxSchemaRetries = n }
}

func WithLogger(l *zap.Logger) OpenOption {
	return func(c *OpenConfig) { c.Logger = l }
}

// Conn is a database connection.
//
// A Conn is not safe for concurrent use; callers serialize access. Handlers and
// user functions run synchronously on the goroutine that triggered them.
type Conn struct {
	handle sqliteDB
	token  uintptr
	path   string
	logger *zap.Logger

	// guards handle for Interrupt, which may run on another goroutine
	interruptMu sync.Mutex

	closePolicy      ClosePolicy
	maxSchemaRetries int

	busy     BusyHandler
	trace    TraceHandler
	progress ProgressHandler
	// error of the progress handler that aborted the running statement
	callbackErr error

	aux       any
	stmts     map[*Stmt]struct{}
	blobs     map[*BlobIO]struct{}
	functions map[functionKey]uintptr

	// callback nesting; restricted counts busy/progress handlers only
	callbackDepth int
	restricted    int
}

// Open opens the database at path. ":memory:" opens a private in-memory database.
func Open(path string, opts ...OpenOption) (*Conn, error) {
	if err := InitLibrary(LoadLibraryConfig{}); err != nil {
		return nil, err
	}
	cfg := OpenConfig{
		Flags:            OpenReadWrite | OpenCreate,
		ClosePolicy:      CloseStrict,
		MaxSchemaRetries: DefaultMaxSchemaRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}

	db, err := sqlite3_open_v2(path, int32(cfg.Flags), cfg.Vfs)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Op = "open"
		}
		return nil, err
	}
	c := &Conn{
		handle:           db,
		path:             path,
		logger:           cfg.Logger.With(zap.String("db", path)),
		closePolicy:      cfg.ClosePolicy,
		maxSchemaRetries: cfg.MaxSchemaRetries,
		stmts:            make(map[*Stmt]struct{}),
		blobs:            make(map[*BlobIO]struct{}),
		functions:        make(map[functionKey]uintptr),
	}
	c.token = handles.add(c)
	if cfg.BusyTimeout > 0 {
		if err := c.SetBusyTimeout(cfg.BusyTimeout); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close closes the connection. Closing a closed connection is a no-op.
//
// With CloseStrict, Close fails with ErrBusy while statements or blobs are live
// and the connection stays usable. Close from inside one of the connection's
// callbacks fails with ErrMisuse.
func (c *Conn) Close() error {
	if c.handle == nil {
		return nil
	}
	if c.callbackDepth > 0 {
		return misuseError("close", "connection closed from inside its own callback")
	}
	if c.closePolicy == CloseFinalize && (len(c.stmts) > 0 || len(c.blobs) > 0) {
		c.logger.Debug("finalizing live statements on close",
			zap.Int("statements", len(c.stmts)),
			zap.Int("blobs", len(c.blobs)))
		for s := range c.stmts {
			_ = s.Finalize()
		}
		for b := range c.blobs {
			_ = b.Close()
		}
	}
	c.interruptMu.Lock()
	if code := sqlite3_close(c.handle); code != SQLITE_OK {
		c.interruptMu.Unlock()
		return c.lastError("close", code)
	}
	c.handle = nil
	c.interruptMu.Unlock()
	handles.remove(c.token)
	c.busy, c.trace, c.progress = nil, nil, nil
	c.aux = nil
	return nil
}

// dbHandle returns the engine handle for op, or the reason it must not be used.
func (c *Conn) dbHandle(op string) (sqliteDB, error) {
	if c.handle == nil {
		return nil, closedError(op, "connection")
	}
	if c.restricted > 0 {
		return nil, misuseError(op, "connection used from inside its busy or progress handler")
	}
	return c.handle, nil
}

func (c *Conn) enterCallback(restricted bool) {
	c.callbackDepth++
	if restricted {
		c.restricted++
	}
}

func (c *Conn) leaveCallback(restricted bool) {
	c.callbackDepth--
	if restricted {
		c.restricted--
	}
}

// lastError builds an error from code and the connection's current message.
// A progress handler error is attached to the interrupt it caused.
func (c *Conn) lastError(op string, code Code) error {
	ext := code
	msg := ""
	if c.handle != nil {
		var last Code
		last, ext, msg = sqlite3_last_error(c.handle)
		if last.Primary() != code.Primary() {
			ext, msg = code, sqlite3_errstr(code)
		}
	}
	e := &Error{Code: code.Primary(), ExtendedCode: ext, Message: msg, Op: op}
	if code.Primary() == SQLITE_INTERRUPT && c.callbackErr != nil {
		e.cause = c.callbackErr
	}
	c.callbackErr = nil
	return e
}

// SetAux stores an arbitrary value on the connection; nil clears it.
func (c *Conn) SetAux(v any) { c.aux = v }

// Aux returns the value stored with SetAux, or ErrNotFound.
func (c *Conn) Aux() (any, error) {
	if c.aux == nil {
		return nil, ErrNotFound
	}
	return c.aux, nil
}

// Interrupt makes running statements on the connection stop at the next
// opportunity with ErrInterrupted. It is the one method safe to call from
// another goroutine while the connection is in use, including concurrently
// with Close. It fails with ErrClosed once the connection is closed.
func (c *Conn) Interrupt() error {
	c.interruptMu.Lock()
	defer c.interruptMu.Unlock()
	if c.handle == nil {
		return closedError("interrupt", "connection")
	}
	c_sqlite3_interrupt(unsafe.Pointer(c.handle))
	return nil
}

func (c *Conn) LastInsertRowID() (int64, error) {
	db, err := c.dbHandle("last insert rowid")
	if err != nil {
		return 0, err
	}
	return c_sqlite3_last_insert_rowid(unsafe.Pointer(db)), nil
}

// Changes reports rows modified by the most recent INSERT, UPDATE or DELETE.
func (c *Conn) Changes() (int, error) {
	db, err := c.dbHandle("changes")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_changes(unsafe.Pointer(db))), nil
}

func (c *Conn) TotalChanges() (int, error) {
	db, err := c.dbHandle("total changes")
	if err != nil {
		return 0, err
	}
	return int(c_sqlite3_total_changes(unsafe.Pointer(db))), nil
}

// Autocommit reports whether the connection is outside an explicit transaction.
func (c *Conn) Autocommit() (bool, error) {
	db, err := c.dbHandle("autocommit")
	if err != nil {
		return false, err
	}
	return c_sqlite3_get_autocommit(unsafe.Pointer(db)) != 0, nil
}

// SetBusyTimeout installs the engine's sleeping busy handler, replacing any
// BusyHandler. A non-positive d disables it.
func (c *Conn) SetBusyTimeout(d time.Duration) error {
	db, err := c.dbHandle("busy timeout")
	if err != nil {
		return err
	}
	if code := Code(c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(d/time.Millisecond))); code != SQLITE_OK {
		return c.lastError("busy timeout", code)
	}
	c.busy = nil
	return nil
}

// Path returns the name the connection was opened with.
func (c *Conn) Path() string { return c.path }

// Exec runs every statement in sql. args are bound to the first statement only.
func (c *Conn) Exec(sql string, args ...Value) error {
	offset := 0
	first := true
	for offset < len(sql) {
		s, tail, err := c.Prepare(sql, offset)
		if err != nil {
			return err
		}
		if s == nil {
			break
		}
		offset = tail
		if first {
			err = s.Exec(args...)
			first = false
		} else {
			err = s.Exec()
		}
		_ = s.Finalize()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) track(s *Stmt)   { c.stmts[s] = struct{}{} }
func (c *Conn) untrack(s *Stmt) { delete(c.stmts, s) }

// Version returns the engine's version string, or "" if it cannot be loaded.
func Version() string {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return ""
	}
	return sqlite3_libversion()
}

// VersionNumber returns the engine's version as X*1000000 + Y*1000 + Z.
func VersionNumber() int {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return 0
	}
	return sqlite3_libversion_number()
}

func SourceID() string {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return ""
	}
	return sqlite3_sourceid()
}

// Complete reports whether sql ends with a complete statement.
func Complete(sql string) bool {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return false
	}
	return c_sqlite3_complete(sql) != 0
}

// Sleep suspends the calling thread inside the engine for at least d and
// returns the time the engine actually slept.
func Sleep(d time.Duration) time.Duration {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return 0
	}
	return time.Duration(c_sqlite3_sleep(int32(d/time.Millisecond))) * time.Millisecond
}

// CompileOptions lists the options the engine was built with.
func CompileOptions() []string {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return nil
	}
	return sqlite3_compileoptions()
}
