package mlsqlite

import (
	"strings"
	"unsafe"
)

// Function is a scalar SQL function implemented in Go.
//
// args are views of the engine values and are invalid once Call returns;
// copy what must outlive the call with RawValue.Value. A returned error, or a
// panic, becomes the SQL error of the calling statement.
type Function interface {
	Call(args []*RawValue) (Value, error)
}

type FunctionFunc func(args []*RawValue) (Value, error)

func (f FunctionFunc) Call(args []*RawValue) (Value, error) { return f(args) }

type functionKey struct {
	name  string
	nargs int
}

type functionEntry struct {
	conn *Conn
	key  functionKey
	fn   Function
}

// CreateFunction registers fn as the SQL function name taking nargs arguments,
// or any number of them when nargs is -1. Registering the same name and arity
// again replaces the previous function.
func (c *Conn) CreateFunction(name string, nargs int, fn Function) error {
	db, err := c.dbHandle("create function")
	if err != nil {
		return err
	}
	if fn == nil {
		return misuseError("create function", "nil function")
	}
	if nargs < -1 || nargs > 127 {
		return misuseError("create function", "argument count out of range")
	}
	key := functionKey{name: strings.ToLower(name), nargs: nargs}
	entry := &functionEntry{conn: c, key: key, fn: fn}
	token := handles.add(entry)
	// the engine calls the destroy callback for a replaced registration, and
	// for this one if registration fails
	code := Code(c_sqlite3_create_function_v2(
		unsafe.Pointer(db), name, int32(nargs), sqlite_utf8,
		token, functionTrampoline, 0, 0, destroyTrampoline,
	))
	if code != SQLITE_OK {
		handles.remove(token)
		return c.lastError("create function", code)
	}
	c.functions[key] = token
	return nil
}

// DeleteFunction removes the zero-argument registration of name. Registrations
// with other arities are left in place.
func (c *Conn) DeleteFunction(name string) error {
	db, err := c.dbHandle("delete function")
	if err != nil {
		return err
	}
	code := Code(c_sqlite3_create_function_v2(unsafe.Pointer(db), name, 0, sqlite_utf8, 0, 0, 0, 0, 0))
	if code != SQLITE_OK {
		return c.lastError("delete function", code)
	}
	return nil
}

// forgetFunction drops key unless it was already re-registered under a new token.
func (c *Conn) forgetFunction(key functionKey, token uintptr) {
	if c.functions[key] == token {
		delete(c.functions, key)
	}
}
