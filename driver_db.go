package mlsqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DriverName is the name the driver is registered under with database/sql.
const DriverName = "mlsqlite"

// DefaultBusyTimeout is applied to driver connections unless the DSN or the
// connector says otherwise, in milliseconds.
const DefaultBusyTimeout = 5000

// define all package level errors here
var (
	ErrStmtClosed = errors.New("mlsqlite: statement closed")
	ErrConnClosed = errors.New("mlsqlite: connection closed")
	ErrRowsClosed = errors.New("mlsqlite: rows closed")
	ErrTxDone     = errors.New("mlsqlite: transaction done")
)

// define all package level structs here

type sqliteDriver struct{}

type driverConn struct {
	conn   *Conn
	txLock string

	mu          sync.Mutex
	closed      bool
	busyTimeout int // current busy timeout in milliseconds
}

type driverStmt struct {
	conn      *driverConn
	sql       string
	numInputs int
	closed    bool
}

type driverRows struct {
	conn      *driverConn
	ctx       context.Context
	stmt      *Stmt
	columns   []string
	decltypes []string

	closed bool
	err    error
}

type driverResult struct {
	lastInsertId int64
	rowsAffected int64
}

type driverTx struct {
	conn *driverConn
	done bool
}

// dsnConfig is the parsed form of a DSN.
type dsnConfig struct {
	Path             string
	Flags            OpenFlags
	Vfs              string
	BusyTimeout      int // 0 = default, -1 = disabled
	ClosePolicy      ClosePolicy
	MaxSchemaRetries int
	TxLock           string
}

// register driver
func init() {
	sql.Register(DriverName, &sqliteDriver{})
}

// Implement sql.Driver methods
func (d *sqliteDriver) Open(dsn string) (driver.Conn, error) {
	config, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return openDriverConn(config, -1, nil, nil)
}

// openDriverConn opens the engine connection for config. busyTimeout overrides
// the DSN when >= 0. hook runs on the new connection before it is handed out.
func openDriverConn(config dsnConfig, busyTimeout int, extra []OpenOption, hook func(*Conn) error) (*driverConn, error) {
	// A value of -1 in config means explicitly disabled (no timeout)
	// A value of 0 means use the default timeout
	timeout := config.BusyTimeout
	if busyTimeout >= 0 {
		timeout = busyTimeout
		if timeout == 0 {
			timeout = -1
		}
	}
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	} else if timeout < 0 {
		timeout = 0
	}

	opts := []OpenOption{
		WithFlags(config.Flags),
		WithVfs(config.Vfs),
		WithClosePolicy(config.ClosePolicy),
		WithBusyTimeout(time.Duration(timeout) * time.Millisecond),
	}
	if config.MaxSchemaRetries > 0 {
		opts = append(opts, WithMaxSchemaRetries(config.MaxSchemaRetries))
	}
	opts = append(opts, extra...)
	conn, err := Open(config.Path, opts...)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return &driverConn{
		conn:        conn,
		txLock:      config.TxLock,
		busyTimeout: timeout,
	}, nil
}

// --- driver.Conn and friends ---

// Ensure driverConn implements required interfaces.
var (
	_ driver.Conn               = (*driverConn)(nil)
	_ driver.ConnPrepareContext = (*driverConn)(nil)
	_ driver.ExecerContext      = (*driverConn)(nil)
	_ driver.QueryerContext     = (*driverConn)(nil)
	_ driver.Pinger             = (*driverConn)(nil)
	_ driver.ConnBeginTx        = (*driverConn)(nil)
	_ driver.NamedValueChecker  = (*driverConn)(nil)
)

// SQLiteConn exposes the underlying connection, e.g. through sql.Conn.Raw.
// It must only be used inside the Raw callback.
func (c *driverConn) SQLiteConn() *Conn { return c.conn }

// CheckNamedValue lets Value and full-range uint64 arguments through to bindOne;
// everything else goes through the default conversion.
func (c *driverConn) CheckNamedValue(nv *driver.NamedValue) error {
	switch nv.Value.(type) {
	case Value, uint64:
		return nil
	}
	return driver.ErrSkip
}

func (c *driverConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *driverConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// PREPARE in Prepare - do not delay that
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, _, err := c.conn.Prepare(query, 0)
	if err != nil {
		return nil, err
	}
	// determine number of inputs and then finalize immediately to avoid keeping state
	num := 0
	if stmt != nil {
		num, _ = stmt.ParameterCount()
		_ = stmt.Finalize()
	}
	return &driverStmt{
		conn:      c,
		sql:       query,
		numInputs: num,
	}, nil
}

func (c *driverConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	c.closed = true
	return nil
}

func (c *driverConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *driverConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault, sql.LevelSerializable:
	default:
		return nil, fmt.Errorf("mlsqlite: unsupported isolation level %v", sql.IsolationLevel(opts.Isolation))
	}
	begin := "BEGIN"
	if c.txLock != "" {
		begin = "BEGIN " + strings.ToUpper(c.txLock)
	}
	if _, err := c.ExecContext(ctx, begin, nil); err != nil {
		return nil, err
	}
	return &driverTx{conn: c}, nil
}

func (c *driverConn) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, err := c.ExecContext(ctx, "SELECT 1", nil)
	return err
}

func (c *driverConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// Multi-statement support for Exec-family
	var totalAffected int64
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.watch(ctx)()

	offset := 0
	first := true
	for offset < len(query) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stmt, tail, err := c.conn.Prepare(query, offset)
		if err != nil {
			return nil, c.ctxErr(ctx, err)
		}
		if stmt == nil {
			break
		}
		offset = tail

		// Bind only for the first statement
		if first && len(args) > 0 {
			if err := bindArgs(stmt, args); err != nil {
				_ = stmt.Finalize()
				return nil, err
			}
		}
		before, err := c.conn.TotalChanges()
		if err != nil {
			_ = stmt.Finalize()
			return nil, err
		}
		err = stmt.Exec()
		// finalize regardless of status
		_ = stmt.Finalize()
		if err != nil {
			return nil, c.ctxErr(ctx, err)
		}
		after, err := c.conn.TotalChanges()
		if err != nil {
			return nil, err
		}
		if after != before {
			changes, err := c.conn.Changes()
			if err != nil {
				return nil, err
			}
			affected := int64(changes)
			// rows affected is capped at MaxInt64
			if affected > math.MaxInt64-totalAffected {
				totalAffected = math.MaxInt64
			} else {
				totalAffected += affected
			}
		}
		first = false
	}
	lastID, err := c.conn.LastInsertRowID()
	if err != nil {
		return nil, err
	}
	return &driverResult{
		lastInsertId: lastID,
		rowsAffected: totalAffected,
	}, nil
}

func (c *driverConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, tail, err := c.conn.Prepare(query, 0)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, fmt.Errorf("mlsqlite: query contains no statement")
	}
	// Only single-statement queries supported here
	if extra, _, err := c.conn.Prepare(query, tail); err != nil || extra != nil {
		if extra != nil {
			_ = extra.Finalize()
		}
		_ = stmt.Finalize()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mlsqlite: query contains multiple statements")
	}
	if len(args) > 0 {
		if err := bindArgs(stmt, args); err != nil {
			_ = stmt.Finalize()
			return nil, err
		}
	}
	// Return rows wrapper; do not step yet, leave cursor before first row
	return &driverRows{
		conn: c,
		ctx:  ctx,
		stmt: stmt,
	}, nil
}

func (c *driverConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return nil
}

// watch interrupts the connection if ctx ends before the returned stop runs.
func (c *driverConn) watch(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			// a closed connection has nothing left to interrupt
			_ = c.conn.Interrupt()
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// ctxErr reports the context's error for interrupts caused by cancellation.
func (c *driverConn) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ErrInterrupted) {
		return ctx.Err()
	}
	return err
}

// SetBusyTimeout sets the busy timeout for this connection in milliseconds.
// Pass 0 to disable the busy handler (immediate SQLITE_BUSY on contention).
// This method is thread-safe.
func (c *driverConn) SetBusyTimeout(timeoutMs int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	if err := c.conn.SetBusyTimeout(time.Duration(timeoutMs) * time.Millisecond); err != nil {
		return err
	}
	c.busyTimeout = timeoutMs
	return nil
}

// GetBusyTimeout returns the current busy timeout in milliseconds.
// Returns 0 if the busy handler is disabled.
func (c *driverConn) GetBusyTimeout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyTimeout
}

// --- Connector Pattern ---

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithConnectorBusyTimeout sets the busy timeout in milliseconds.
// Use 0 to disable the busy handler, -1 to use the DSN or default (5000ms).
func WithConnectorBusyTimeout(ms int) ConnectorOption {
	return func(c *Connector) {
		c.busyTimeout = ms
	}
}

// WithOpenOptions passes extra options to Open for every new connection.
func WithOpenOptions(opts ...OpenOption) ConnectorOption {
	return func(c *Connector) {
		c.openOptions = append(c.openOptions, opts...)
	}
}

// WithConnectHook runs hook on every new connection, e.g. to register functions
// or handlers. A hook error closes the connection and fails Connect.
func WithConnectHook(hook func(*Conn) error) ConnectorOption {
	return func(c *Connector) {
		c.hook = hook
	}
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	config      dsnConfig
	busyTimeout int // -1 = use DSN or default, 0 = disabled, >0 = custom
	openOptions []OpenOption
	hook        func(*Conn) error
}

// NewConnector creates a new Connector with the given DSN and options.
// By default, uses the DefaultBusyTimeout (5000ms).
func NewConnector(dsn string, opts ...ConnectorOption) (*Connector, error) {
	config, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := &Connector{
		config:      config,
		busyTimeout: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openDriverConn(c.config, c.busyTimeout, c.openOptions, c.hook)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &sqliteDriver{}
}

// Ensure Connector implements driver.Connector
var _ driver.Connector = (*Connector)(nil)

// --- driver.Stmt and friends ---

// Ensure driverStmt implements required interfaces.
var (
	_ driver.Stmt             = (*driverStmt)(nil)
	_ driver.StmtExecContext  = (*driverStmt)(nil)
	_ driver.StmtQueryContext = (*driverStmt)(nil)
)

func (s *driverStmt) Close() error {
	s.closed = true
	return nil
}

func (s *driverStmt) NumInput() int {
	return s.numInputs
}

func (s *driverStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *driverStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.ExecContext(ctx, s.sql, args)
}

func (s *driverStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *driverStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.QueryContext(ctx, s.sql, args)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// --- driver.Rows ---

// Ensure driverRows implements the required interfaces.
var (
	_ driver.Rows                           = (*driverRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*driverRows)(nil)
)

func (r *driverRows) Columns() []string {
	if r.columns != nil {
		return r.columns
	}
	n, _ := r.stmt.ColumnCount()
	names := make([]string, n)
	decltypes := make([]string, n)
	for i := 0; i < n; i++ {
		names[i], _ = r.stmt.ColumnName(i)
		decltypes[i], _ = r.stmt.ColumnDecltype(i)
	}
	r.columns = names
	r.decltypes = decltypes
	return r.columns
}

func (r *driverRows) ColumnTypeDatabaseTypeName(index int) string {
	_ = r.Columns()
	if index < 0 || index >= len(r.decltypes) {
		return ""
	}
	return strings.ToUpper(r.decltypes[index])
}

func (r *driverRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	return r.stmt.Finalize()
}

func (r *driverRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	// Ensure decltypes are populated
	_ = r.Columns()
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return err
	}
	stop := r.conn.watch(r.ctx)
	res, err := r.stmt.Step()
	stop()
	if err != nil {
		r.err = r.conn.ctxErr(r.ctx, err)
		return r.err
	}
	if res == Done {
		return io.EOF
	}
	row, err := r.stmt.Row()
	if err != nil {
		r.err = err
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("mlsqlite: expected %d dests, got %d", len(row), len(dest))
	}
	for i, v := range row {
		// Check if column type indicates a time value
		if v.Kind() == KindText && i < len(r.decltypes) && isTimeColumn(r.decltypes[i]) {
			if t, err := parseTimeString(v.Text()); err == nil {
				dest[i] = t
				continue
			}
		}
		dest[i] = v.Any()
	}
	return nil
}

// --- driver.Result ---

var _ driver.Result = (*driverResult)(nil)

func (r *driverResult) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

func (r *driverResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

var _ driver.Tx = (*driverTx)(nil)

func (tx *driverTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "COMMIT", nil)
	tx.done = true
	return err
}

func (tx *driverTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "ROLLBACK", nil)
	tx.done = true
	return err
}

// Helpers

// parseDSN supports format: <path>[?mode=ro|rw|rwc|memory&vfs=<string>&_busy_timeout=<int>&_close=strict|finalize&_schema_retries=<int>&_txlock=deferred|immediate|exclusive]
func parseDSN(dsn string) (dsnConfig, error) {
	config := dsnConfig{
		Path:        dsn,
		Flags:       OpenReadWrite | OpenCreate,
		ClosePolicy: CloseFinalize,
	}
	qMark := strings.IndexByte(dsn, '?')
	if qMark < 0 {
		return config, nil
	}
	config.Path = dsn[:qMark]
	vals, err := url.ParseQuery(dsn[qMark+1:])
	if err != nil {
		return dsnConfig{}, err
	}
	switch v := vals.Get("mode"); v {
	case "":
	case "ro":
		config.Flags = OpenReadOnly
	case "rw":
		config.Flags = OpenReadWrite
	case "rwc":
		config.Flags = OpenReadWrite | OpenCreate
	case "memory":
		config.Flags = OpenReadWrite | OpenCreate | OpenMemory
	default:
		return dsnConfig{}, fmt.Errorf("mlsqlite: invalid mode %q", v)
	}
	if v := vals.Get("vfs"); v != "" {
		config.Vfs = v
	}
	if v := vals.Get("_busy_timeout"); v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil {
			return dsnConfig{}, fmt.Errorf("mlsqlite: invalid _busy_timeout %q: %w", v, err)
		}
		config.BusyTimeout = timeout
	}
	switch v := strings.ToLower(vals.Get("_close")); v {
	case "", "finalize":
	case "strict":
		config.ClosePolicy = CloseStrict
	default:
		return dsnConfig{}, fmt.Errorf("mlsqlite: invalid _close %q", v)
	}
	if v := vals.Get("_schema_retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return dsnConfig{}, fmt.Errorf("mlsqlite: invalid _schema_retries %q", v)
		}
		config.MaxSchemaRetries = n
	}
	switch v := strings.ToLower(vals.Get("_txlock")); v {
	case "", "deferred", "immediate", "exclusive":
		config.TxLock = v
	default:
		return dsnConfig{}, fmt.Errorf("mlsqlite: invalid _txlock %q", v)
	}
	return config, nil
}

// bindArgs binds ordered and named values to a statement.
// Named values are looked up with each of the ":", "@" and "$" prefixes,
// otherwise ordinal positions are used (1-based).
func bindArgs(stmt *Stmt, args []driver.NamedValue) error {
	// Validate number of inputs if no named args present
	hasNamed := false
	for _, nv := range args {
		if nv.Name != "" {
			hasNamed = true
			break
		}
	}
	if !hasNamed {
		paramCount, err := stmt.ParameterCount()
		if err != nil {
			return err
		}
		if len(args) != paramCount {
			return fmt.Errorf("mlsqlite: got %d args, want %d", len(args), paramCount)
		}
	}
	for idx, nv := range args {
		pos := idx + 1
		if nv.Name != "" {
			np := 0
			for _, prefix := range []string{":", "@", "$"} {
				if np, _ = stmt.ParameterIndex(prefix + nv.Name); np > 0 {
					break
				}
			}
			if np <= 0 {
				return fmt.Errorf("mlsqlite: unknown named parameter %q", nv.Name)
			}
			pos = np
		} else if nv.Ordinal > 0 {
			pos = nv.Ordinal
		}
		if err := bindOne(stmt, pos, nv.Value); err != nil {
			return err
		}
	}
	return nil
}

func bindOne(stmt *Stmt, position int, v any) error {
	if x, ok := v.(uint64); ok {
		// cap at MaxInt64 to avoid overflow
		if x > uint64(math.MaxInt64) {
			x = math.MaxInt64
		}
		return stmt.Bind(position, Integer(int64(x)))
	}
	val, err := ValueOf(v)
	if err != nil {
		// Fallback to fmt to string
		val = Text(fmt.Sprint(v))
	}
	return stmt.Bind(position, val)
}

// isTimeColumn checks if the column declared type indicates a time/date column.
// This matches the behavior of github.com/mattn/go-sqlite3.
func isTimeColumn(decltype string) bool {
	switch strings.ToUpper(decltype) {
	case "TIMESTAMP", "DATETIME", "DATE":
		return true
	}
	return false
}

// SQLiteTimestampFormats are the timestamp formats recognised in time columns.
var SQLiteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimeString attempts to parse a string as a time.Time value.
func parseTimeString(s string) (time.Time, error) {
	// a trailing "Z" means UTC, which is the parsing location anyway
	s = strings.TrimSuffix(s, "Z")
	for _, format := range SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
