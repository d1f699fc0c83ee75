package mlsqlite

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	require.True(t, v.IsNull())
	require.Equal(t, KindNull, v.Kind())
	require.Nil(t, v.Any())
	require.Equal(t, "NULL", v.String())
}

func TestEmptyTextAndBlobAreNotNull(t *testing.T) {
	for _, v := range []Value{Text(""), TextBytes(nil), Blob(nil), Blob([]byte{})} {
		require.False(t, v.IsNull())
		require.NotNil(t, v.Bytes())
		require.Len(t, v.Bytes(), 0)
	}
	require.Equal(t, "", Text("").Any())
	require.Equal(t, []byte{}, Blob(nil).Any())
}

func TestValueAccessors(t *testing.T) {
	require.Equal(t, int64(math.MaxInt64), Integer(math.MaxInt64).Int64())
	require.Equal(t, KindInteger32, Integer32(-7).Kind())
	require.Equal(t, int64(-7), Integer32(-7).Int64())
	require.Equal(t, 2.5, Float(2.5).Float64())
	require.Equal(t, int64(2), Float(2.5).Int64())
	require.Equal(t, float64(3), Integer(3).Float64())
	require.Equal(t, "héllo", Text("héllo").Text())
	require.Equal(t, []byte{1, 2}, Blob([]byte{1, 2}).Bytes())
	require.Nil(t, Integer(1).Bytes())
	require.Equal(t, "", Float(1).Text())
}

func TestValueString(t *testing.T) {
	require.Equal(t, "42", Integer(42).String())
	require.Equal(t, "0.5", Float(0.5).String())
	require.Equal(t, `"a\"b"`, Text(`a"b`).String())
	require.Equal(t, "x'0aff'", Blob([]byte{0x0a, 0xff}).String())
	require.Equal(t, "TEXT", KindText.String())
	require.Equal(t, "Kind(42)", Kind(42).String())
}

func TestValueOf(t *testing.T) {
	ts := time.Date(2024, 2, 29, 12, 30, 0, 500, time.UTC)
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null()},
		{int64(-1), Integer(-1)},
		{42, Integer(42)},
		{int32(5), Integer32(5)},
		{uint16(9), Integer(9)},
		{true, Integer(1)},
		{false, Integer(0)},
		{1.5, Float(1.5)},
		{float32(0.25), Float(0.25)},
		{"s", Text("s")},
		{[]byte("b"), Blob([]byte("b"))},
		{ts, Text("2024-02-29T12:30:00.0000005Z")},
		{Integer(3), Integer(3)},
	}
	for _, tt := range tests {
		got, err := ValueOf(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "ValueOf(%#v)", tt.in)
	}

	_, err := ValueOf(struct{}{})
	require.Error(t, err)
}

func TestRawValueOutsideCallIsMisuse(t *testing.T) {
	r := &RawValue{}
	_, err := r.Type()
	require.ErrorIs(t, err, ErrMisuse)
	_, err = r.Int64()
	require.ErrorIs(t, err, ErrMisuse)
	_, err = r.Text()
	require.ErrorIs(t, err, ErrMisuse)
	_, err = r.Value()
	require.ErrorIs(t, err, ErrMisuse)

	var nilRaw *RawValue
	_, err = nilRaw.Blob()
	require.ErrorIs(t, err, ErrMisuse)
}
