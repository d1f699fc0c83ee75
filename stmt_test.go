package mlsqlite

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func prepare(t *testing.T, c *Conn, sql string) *Stmt {
	t.Helper()
	s, _, err := c.Prepare(sql, 0)
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Finalize() })
	return s
}

func TestPrepareWalksScript(t *testing.T) {
	c := openMemory(t)
	script := "SELECT 1; SELECT 'two';\n  -- done\n"

	var texts []string
	offset := 0
	for {
		s, tail, err := c.Prepare(script, offset)
		require.NoError(t, err)
		if s == nil {
			require.Equal(t, len(script), tail)
			break
		}
		require.Equal(t, tail, s.Tail())
		texts = append(texts, s.SQL())
		require.NoError(t, s.Finalize())
		offset = tail
	}
	require.Equal(t, []string{"SELECT 1;", " SELECT 'two';"}, texts)
}

func TestPrepareConsumesWholeText(t *testing.T) {
	c := openMemory(t)

	for _, sql := range []string{"SELECT 1", "SELECT 1;", "CREATE TABLE t(a INTEGER)"} {
		s, tail, err := c.Prepare(sql, 0)
		require.NoError(t, err, sql)
		require.NotNil(t, s, sql)
		require.Equal(t, len(sql), tail, sql)
		require.NoError(t, s.Finalize())
	}
	for _, sql := range []string{"", "   ", "\n\t", "-- nothing here", "/* c */ \n -- d\n"} {
		s, tail, err := c.Prepare(sql, 0)
		require.NoError(t, err, sql)
		require.Nil(t, s, sql)
		require.Equal(t, len(sql), tail, sql)
	}
}

func TestPrepareErrors(t *testing.T) {
	c := openMemory(t)

	_, _, err := c.Prepare("SELECT 1", 9)
	require.ErrorIs(t, err, ErrMisuse)

	s, tail, err := c.Prepare("SELECT * FROM nowhere", 0)
	require.Nil(t, s)
	require.Zero(t, tail)
	require.ErrorIs(t, err, ErrGeneric)
	require.ErrorContains(t, err, "no such table")
}

func TestBindAndColumnRoundTrip(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?, ?, ?, ?, ?, ?, ?")

	n, err := s.ParameterCount()
	require.NoError(t, err)
	require.Equal(t, 7, n)

	require.NoError(t, s.BindAll(
		Null(),
		Integer(1<<40),
		Integer32(-5),
		Float(1.5),
		Text("hé\x00llo"),
		Blob([]byte{0, 1, 2}),
		Blob(nil),
	))
	r, err := s.Step()
	require.NoError(t, err)
	require.Equal(t, Row, r)

	row, err := s.Row()
	require.NoError(t, err)
	require.Equal(t, []Value{
		Null(),
		Integer(1 << 40),
		Integer(-5),
		Float(1.5),
		Text("hé\x00llo"),
		Blob([]byte{0, 1, 2}),
		Blob([]byte{}),
	}, row)

	kind, err := s.ColumnType(6)
	require.NoError(t, err)
	require.Equal(t, KindBlob, kind)

	r, err = s.Step()
	require.NoError(t, err)
	require.Equal(t, Done, r)
}

func TestIntegerRoundTripExtremes(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?")

	for _, x := range []int64{0, -1, 1, math.MinInt64, math.MaxInt64, math.MaxInt32 + 1} {
		require.NoError(t, s.Bind(1, Integer(x)))
		r, err := s.Step()
		require.NoError(t, err)
		require.Equal(t, Row, r)
		v, err := s.Column(0)
		require.NoError(t, err)
		require.Equal(t, Integer(x), v)
		require.NoError(t, s.Reset())
	}
}

func TestTextAndBlobRoundTripSizes(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?, ?")

	for _, n := range []int{0, 1, 64 << 10, 64<<10 + 1, 200_000} {
		text := strings.Repeat("x", n)
		blob := bytes.Repeat([]byte{0xab}, n)
		require.NoError(t, s.BindAll(Text(text), Blob(blob)))
		r, err := s.Step()
		require.NoError(t, err)
		require.Equal(t, Row, r)

		row, err := s.Row()
		require.NoError(t, err)
		require.Equal(t, KindText, row[0].Kind())
		require.Equal(t, text, row[0].Text())
		require.Equal(t, KindBlob, row[1].Kind())
		require.True(t, bytes.Equal(blob, row[1].Bytes()), "blob of %d bytes", n)
		require.Len(t, row[1].Bytes(), n)
		require.NoError(t, s.Reset())
	}
}

func TestCreateInsertSelect(t *testing.T) {
	c := openMemory(t)

	step := func(s *Stmt, want StepResult) {
		t.Helper()
		r, err := s.Step()
		require.NoError(t, err)
		require.Equal(t, want, r)
	}

	create := prepare(t, c, "CREATE TABLE t(a INTEGER)")
	step(create, Done)

	insert := prepare(t, c, "INSERT INTO t VALUES (?)")
	require.NoError(t, insert.Bind(1, Integer(42)))
	step(insert, Done)

	sel := prepare(t, c, "SELECT a FROM t")
	step(sel, Row)
	v, err := sel.Column(0)
	require.NoError(t, err)
	require.Equal(t, Integer(42), v)
	step(sel, Done)
}

func TestBindOutOfRange(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?")

	err := s.Bind(2, Integer(1))
	require.ErrorIs(t, err, ErrRange)
	require.ErrorIs(t, err, ErrMisuse)
	require.ErrorIs(t, err, ErrBind)

	_, err = s.Column(0)
	require.NoError(t, err)
	_, err = s.Column(1)
	require.ErrorIs(t, err, ErrRange)
	require.ErrorIs(t, err, ErrMisuse)
}

func TestNamedParameters(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT :id, @name, ?")

	name, err := s.ParameterName(1)
	require.NoError(t, err)
	require.Equal(t, ":id", name)
	name, err = s.ParameterName(3)
	require.NoError(t, err)
	require.Empty(t, name)

	idx, err := s.ParameterIndex("@name")
	require.NoError(t, err)
	require.Equal(t, 2, idx)
	idx, err = s.ParameterIndex(":nope")
	require.NoError(t, err)
	require.Zero(t, idx)

	require.NoError(t, s.BindName(":id", Integer(7)))
	require.NoError(t, s.BindName("@name", Text("seven")))
	err = s.BindName(":nope", Integer(1))
	require.ErrorIs(t, err, ErrBind)
	require.ErrorIs(t, err, ErrRange)

	_, err = s.Step()
	require.NoError(t, err)
	row, err := s.Row()
	require.NoError(t, err)
	require.Equal(t, []Value{Integer(7), Text("seven"), Null()}, row)
}

func TestClearBindingsAndReset(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?")
	require.NoError(t, s.Bind(1, Integer(3)))

	_, err := s.Step()
	require.NoError(t, err)
	require.True(t, s.Busy())
	require.NoError(t, s.Reset())
	require.False(t, s.Busy())

	// bindings survive a reset
	_, err = s.Step()
	require.NoError(t, err)
	v, err := s.Column(0)
	require.NoError(t, err)
	require.Equal(t, int64(3), v.Int64())

	require.NoError(t, s.Reset())
	require.NoError(t, s.ClearBindings())
	_, err = s.Step()
	require.NoError(t, err)
	v, err = s.Column(0)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestStmtTransferBindings(t *testing.T) {
	c := openMemory(t)
	from := prepare(t, c, "SELECT ?, ?")
	to := prepare(t, c, "SELECT ?, ?")

	require.NoError(t, from.BindAll(Integer(7), Text("seven")))
	require.NoError(t, from.TransferBindings(to))

	sql, err := to.ExpandedSQL()
	require.NoError(t, err)
	require.Equal(t, "SELECT 7, 'seven'", sql)
	sql, err = from.ExpandedSQL()
	require.NoError(t, err)
	require.Equal(t, "SELECT NULL, NULL", sql)

	r, err := to.Step()
	require.NoError(t, err)
	require.Equal(t, Row, r)
	row, err := to.Row()
	require.NoError(t, err)
	require.Equal(t, []Value{Integer(7), Text("seven")}, row)

	one := prepare(t, c, "SELECT ?")
	require.ErrorIs(t, from.TransferBindings(one), ErrGeneric)

	other := openMemory(t)
	elsewhere := prepare(t, other, "SELECT ?, ?")
	require.ErrorIs(t, from.TransferBindings(elsewhere), ErrMisuse)

	require.NoError(t, one.Finalize())
	require.ErrorIs(t, from.TransferBindings(one), ErrClosed)
}

func TestColumnMetadata(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("CREATE TABLE t(a INTEGER, b TEXT)"))
	s := prepare(t, c, "SELECT a, b, a + 1 AS c FROM t")

	n, err := s.ColumnCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = s.DataCount()
	require.NoError(t, err)
	require.Zero(t, n)

	name, err := s.ColumnName(2)
	require.NoError(t, err)
	require.Equal(t, "c", name)
	decl, err := s.ColumnDecltype(1)
	require.NoError(t, err)
	require.Equal(t, "TEXT", decl)
	decl, err = s.ColumnDecltype(2)
	require.NoError(t, err)
	require.Empty(t, decl)

	require.True(t, s.ReadOnly())
	ins := prepare(t, c, "INSERT INTO t VALUES (1, 'x')")
	require.False(t, ins.ReadOnly())
}

func TestExpandedSQLWithBindings(t *testing.T) {
	c := openMemory(t)
	s := prepare(t, c, "SELECT ?, ?")
	require.NoError(t, s.BindAll(Integer(42), Text("it's")))
	sql, err := s.ExpandedSQL()
	require.NoError(t, err)
	require.Equal(t, "SELECT 42, 'it''s'", sql)
}

func TestStmtExecReuse(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("CREATE TABLE t(a)"))
	s := prepare(t, c, "INSERT INTO t VALUES (?)")
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Exec(Integer(i)))
	}
	require.Equal(t, int64(6), queryInt(t, c, "SELECT sum(a) FROM t"))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	c := openMemory(t)
	s, _, err := c.Prepare("SELECT 1", 0)
	require.NoError(t, err)

	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize())
	require.NoError(t, s.Close())
	require.True(t, s.Finalized())
	require.False(t, s.Expired())

	_, err = s.Step()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Bind(1, Null()), ErrClosed)
	require.ErrorIs(t, s.Reset(), ErrClosed)
}

func TestStepRecompilesAfterSchemaChange(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("CREATE TABLE t(a); INSERT INTO t VALUES (7), (8)"))

	s := prepare(t, c, "SELECT a FROM t WHERE a = ?")
	require.NoError(t, s.Bind(1, Integer(8)))
	require.NoError(t, c.Exec("CREATE TABLE u(b)"))

	r, err := s.Step()
	require.NoError(t, err)
	require.Equal(t, Row, r)
	v, err := s.Column(0)
	require.NoError(t, err)
	require.Equal(t, int64(8), v.Int64())
	require.False(t, s.Finalized())

	sql, err := s.ExpandedSQL()
	require.NoError(t, err)
	require.Equal(t, "SELECT a FROM t WHERE a = 8", sql)
}

func TestStepGivesUpAfterRetryLimit(t *testing.T) {
	c := openMemory(t, WithMaxSchemaRetries(0))
	require.NoError(t, c.Exec("CREATE TABLE t(a)"))

	s := prepare(t, c, "SELECT a FROM t")
	require.NoError(t, c.Exec("CREATE TABLE u(b)"))

	_, err := s.Step()
	require.ErrorIs(t, err, ErrSchemaChangedRepeatedly)
	require.ErrorIs(t, err, ErrSchemaChanged)
	require.False(t, s.Finalized())
}

func TestStepRecompileFailureFinalizes(t *testing.T) {
	c := openMemory(t)
	require.NoError(t, c.Exec("CREATE TABLE t(a)"))

	s := prepare(t, c, "SELECT a FROM t")
	require.NoError(t, c.Exec("DROP TABLE t"))

	_, err := s.Step()
	require.ErrorIs(t, err, ErrRecompileFailed)
	require.ErrorContains(t, err, "no such table")
	require.True(t, s.Finalized())

	_, err = s.Step()
	require.ErrorIs(t, err, ErrClosed)
	// the connection no longer tracks it
	require.NoError(t, c.Close())
}
