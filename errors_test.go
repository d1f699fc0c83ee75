package mlsqlite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMatchesCodeSentinel(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
	}{
		{SQLITE_ERROR, ErrGeneric},
		{SQLITE_BUSY, ErrBusy},
		{SQLITE_LOCKED, ErrLocked},
		{SQLITE_SCHEMA, ErrSchemaChanged},
		{SQLITE_CONSTRAINT, ErrConstraint},
		{SQLITE_MISUSE, ErrMisuse},
		{SQLITE_INTERRUPT, ErrInterrupted},
		{SQLITE_NOTADB, ErrNotADB},
		{SQLITE_CANTOPEN, ErrCantOpen},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := statusToError(tt.code, "boom")
			require.ErrorIs(t, err, tt.sentinel)
			require.NotErrorIs(t, err, ErrBind)
		})
	}
}

func TestExtendedCodeMatchesPrimarySentinel(t *testing.T) {
	// SQLITE_CONSTRAINT_UNIQUE
	err := statusToError(SQLITE_CONSTRAINT|(8<<8), "UNIQUE constraint failed: t.a")
	require.ErrorIs(t, err, ErrConstraint)

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, SQLITE_CONSTRAINT, e.Code)
	require.Equal(t, SQLITE_CONSTRAINT|(8<<8), e.ExtendedCode)
	require.Equal(t, "SQLITE_CONSTRAINT", e.ExtendedCode.String())
}

func TestRangeIsMisuse(t *testing.T) {
	err := &Error{Code: SQLITE_RANGE, ExtendedCode: SQLITE_RANGE, Op: "bind", kind: ErrBind}
	require.ErrorIs(t, err, ErrRange)
	require.ErrorIs(t, err, ErrMisuse)
	require.ErrorIs(t, err, ErrBind)
}

func TestClosedErrorIsMisuse(t *testing.T) {
	err := closedError("step", "statement")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, err, ErrMisuse)
	require.EqualError(t, err, "sqlite step: statement is closed")
}

func TestErrorCauseIsReachable(t *testing.T) {
	cause := errors.New("stop now")
	err := error(&Error{Code: SQLITE_INTERRUPT, Message: "interrupted", Op: "step", cause: cause})
	wrapped := fmt.Errorf("query: %w", err)
	require.ErrorIs(t, wrapped, ErrInterrupted)
	require.ErrorIs(t, wrapped, cause)
	require.EqualError(t, err, "sqlite step: interrupted: stop now")
}

func TestErrorMessageFallsBackToCodeName(t *testing.T) {
	err := &Error{Code: SQLITE_FULL}
	require.EqualError(t, err, "sqlite: SQLITE_FULL")
	require.Equal(t, "SQLITE_CODE(99)", Code(99).String())
}
