package mlsqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, opts ...OpenOption) *Conn {
	t.Helper()
	requireLibLoaded(t)
	c, err := Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.closePolicy = CloseFinalize
		require.NoError(t, c.Close())
	})
	return c
}

func queryInt(t *testing.T, c *Conn, sql string, args ...Value) int64 {
	t.Helper()
	s, _, err := c.Prepare(sql, 0)
	require.NoError(t, err)
	defer s.Finalize()
	require.NoError(t, s.BindAll(args...))
	r, err := s.Step()
	require.NoError(t, err)
	require.Equal(t, Row, r)
	v, err := s.Column(0)
	require.NoError(t, err)
	return v.Int64()
}

func lastRowID(t *testing.T, c *Conn) int64 {
	t.Helper()
	id, err := c.LastInsertRowID()
	require.NoError(t, err)
	return id
}

func autocommit(t *testing.T, c *Conn) bool {
	t.Helper()
	on, err := c.Autocommit()
	require.NoError(t, err)
	return on
}

func TestOpenAndClose(t *testing.T) {
	requireLibLoaded(t)
	c, err := Open(":memory:")
	require.NoError(t, err)
	require.True(t, autocommit(t, c))
	require.Equal(t, ":memory:", c.Path())

	require.NoError(t, c.Close())
	// closing twice is a no-op
	require.NoError(t, c.Close())

	_, _, err = c.Prepare("SELECT 1", 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Exec("SELECT 1"), ErrClosed)
	require.ErrorIs(t, c.SetBusyHandler(nil), ErrClosed)
}

func TestClosedConnectionAccessors(t *testing.T) {
	requireLibLoaded(t)
	c, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, c.Exec("CREATE TABLE t(a); INSERT INTO t VALUES (1)"))
	require.NoError(t, c.Interrupt())
	require.NoError(t, c.Close())

	id, err := c.LastInsertRowID()
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, id)

	n, err := c.Changes()
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, n)

	n, err = c.TotalChanges()
	require.ErrorIs(t, err, ErrClosed)
	require.Zero(t, n)

	on, err := c.Autocommit()
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, on)

	err = c.Interrupt()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, ErrMisuse)
}

func TestInterruptRacingClose(t *testing.T) {
	requireLibLoaded(t)
	for i := 0; i < 20; i++ {
		c, err := Open(":memory:")
		require.NoError(t, err)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 100; j++ {
				if err := c.Interrupt(); err != nil {
					return
				}
			}
		}()
		require.NoError(t, c.Close())
		<-done
		require.ErrorIs(t, c.Interrupt(), ErrClosed)
	}
}

func TestOpenFailureReportsEngineMessage(t *testing.T) {
	requireLibLoaded(t)
	path := filepath.Join(t.TempDir(), "missing", "db.sqlite")
	_, err := Open(path, WithFlags(OpenReadWrite))
	require.ErrorIs(t, err, ErrCantOpen)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "open", e.Op)
	require.NotEmpty(t, e.Message)
}

func TestOpenReadOnly(t *testing.T) {
	requireLibLoaded(t)
	path := filepath.Join(t.TempDir(), "ro.db")
	rw, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rw.Exec("CREATE TABLE t(a)"))
	require.NoError(t, rw.Close())

	ro, err := Open(path, WithFlags(OpenReadOnly))
	require.NoError(t, err)
	defer ro.Close()
	require.ErrorIs(t, ro.Exec("INSERT INTO t VALUES (1)"), ErrReadOnly)
}

func TestCloseStrictWithLiveStatement(t *testing.T) {
	requireLibLoaded(t)
	c, err := Open(":memory:")
	require.NoError(t, err)
	s, _, err := c.Prepare("SELECT 1", 0)
	require.NoError(t, err)

	err = c.Close()
	require.ErrorIs(t, err, ErrBusy)
	// still usable
	require.NoError(t, c.Exec("SELECT 1"))

	require.NoError(t, s.Finalize())
	require.NoError(t, c.Close())
}

func TestCloseFinalizeWithLiveStatements(t *testing.T) {
	requireLibLoaded(t)
	c, err := Open(":memory:", WithClosePolicy(CloseFinalize))
	require.NoError(t, err)
	s1, _, err := c.Prepare("SELECT 1", 0)
	require.NoError(t, err)
	s2, _, err := c.Prepare("SELECT 2", 0)
	require.NoError(t, err)
	_, err = s2.Step()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.True(t, s1.Finalized())
	require.True(t, s2.Finalized())
	_, err = s1.Step()
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s1.Finalize())
}

func TestAuxStore(t *testing.T) {
	c := openMemory(t)
	_, err := c.Aux()
	require.ErrorIs(t, err, ErrNotFound)

	c.SetAux("first")
	c.SetAux(map[string]int{"n": 1})
	v, err := c.Aux()
	require.NoError(t, err)
	require.Equal(t, map[string]int{"n": 1}, v)

	c.SetAux(nil)
	_, err = c.Aux()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExecScript(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec(`
		CREATE TABLE t(a INTEGER, b TEXT);
		INSERT INTO t VALUES (1, 'one');
		INSERT INTO t VALUES (2, 'two');
		-- trailing comment
	`))
	require.Equal(t, int64(2), queryInt(t, c, "SELECT count(*) FROM t"))
	require.Equal(t, int64(2), lastRowID(t, c))
	changes, err := c.Changes()
	require.NoError(t, err)
	require.Equal(t, 1, changes)
	total, err := c.TotalChanges()
	require.NoError(t, err)
	require.Equal(t, 2, total)

	// arguments go to the first statement only
	require.NoError(t, c.Exec("INSERT INTO t VALUES (?, ?); INSERT INTO t VALUES (9, 'nine')", Integer(3), Text("three")))
	require.Equal(t, int64(4), queryInt(t, c, "SELECT count(*) FROM t"))

	require.ErrorIs(t, c.Exec("INSERT INTO missing VALUES (1)"), ErrGeneric)
}

func TestExecConstraintError(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("CREATE TABLE t(a PRIMARY KEY); INSERT INTO t VALUES (1)"))
	err := c.Exec("INSERT INTO t VALUES (1)")
	require.ErrorIs(t, err, ErrConstraint)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Contains(t, e.Message, "UNIQUE")
	require.Equal(t, "step", e.Op)
}

func TestAutocommitAndTransactions(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("BEGIN"))
	require.False(t, autocommit(t, c))
	require.NoError(t, c.Exec("ROLLBACK"))
	require.True(t, autocommit(t, c))
}

func TestBusyTimeoutOption(t *testing.T) {
	c := openMemory(t, WithBusyTimeout(50*time.Millisecond))
	require.NoError(t, c.SetBusyTimeout(0))
}

func TestPackageInfo(t *testing.T) {
	requireLibLoaded(t)
	require.NotEmpty(t, Version())
	require.GreaterOrEqual(t, VersionNumber(), 3_000_000)
	require.NotEmpty(t, SourceID())
	require.NotEmpty(t, LibraryPath())
	require.True(t, Complete("SELECT 1;"))
	require.False(t, Complete("SELECT 1"))
	require.False(t, Complete("CREATE TRIGGER tr AFTER INSERT ON t BEGIN SELECT 1;"))
	require.GreaterOrEqual(t, Sleep(time.Millisecond), time.Duration(0))
	_ = CompileOptions()
}
