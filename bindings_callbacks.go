package mlsqlite

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// purego callbacks are a limited, never-freed resource, so every engine callback
// goes through one of these trampolines. The engine's context pointer carries a
// handleTable token, never a Go pointer.
var (
	busyTrampoline     uintptr // int (*)(void*, int)
	traceTrampoline    uintptr // int (*)(unsigned, void*, void*, void*)
	progressTrampoline uintptr // int (*)(void*)
	functionTrampoline uintptr // void (*)(sqlite3_context*, int, sqlite3_value**)
	destroyTrampoline  uintptr // void (*)(void*)
	releaseTrampoline  uintptr // void (*)(void*)
)

// all callbacks return a pointer-sized value, which the windows implementation requires
func register_sqlite3_callbacks() {
	busyTrampoline = purego.NewCallback(func(token uintptr, count uintptr) uintptr {
		return uintptr(busyCallback(token, int(int32(count))))
	})
	traceTrampoline = purego.NewCallback(func(mask uintptr, token uintptr, p uintptr, x uintptr) uintptr {
		if uint32(mask)&sqlite_trace_stmt != 0 {
			traceCallback(token, p, x)
		}
		return 0
	})
	progressTrampoline = purego.NewCallback(func(token uintptr) uintptr {
		return uintptr(progressCallback(token))
	})
	functionTrampoline = purego.NewCallback(func(ctx uintptr, argc uintptr, argv uintptr) uintptr {
		functionCallback(ctx, int(int32(argc)), argv)
		return 0
	})
	destroyTrampoline = purego.NewCallback(func(token uintptr) uintptr {
		destroyCallback(token)
		return 0
	})
	releaseTrampoline = purego.NewCallback(func(addr uintptr) uintptr {
		largeBuffers.release(addr)
		return 0
	})
}

// handleTable maps integer tokens handed to the engine back to Go objects.
type handleTable struct {
	mu      sync.Mutex
	next    uintptr
	entries map[uintptr]any
}

var handles = &handleTable{entries: make(map[uintptr]any)}

func (t *handleTable) add(v any) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.entries[t.next] = v
	return t.next
}

func (t *handleTable) get(token uintptr) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[token]
}

func (t *handleTable) remove(token uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, token)
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func connFromToken(token uintptr) *Conn {
	c, _ := handles.get(token).(*Conn)
	return c
}

// callSafely runs a user callback, turning a panic into an error.
func callSafely(log *zap.Logger, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered panic in callback", zap.String("callback", what), zap.Any("panic", r))
			err = fmt.Errorf("mlsqlite: %s panicked: %v", what, r)
		}
	}()
	return fn()
}

// busyCallback returns non-zero to make the engine retry.
// Handler errors and panics are treated as BusyFail and only logged; the caller
// sees ErrBusy or ErrLocked from the operation that hit contention.
func busyCallback(token uintptr, count int) int32 {
	c := connFromToken(token)
	if c == nil || c.busy == nil {
		return 0
	}
	h := c.busy
	c.enterCallback(true)
	defer c.leaveCallback(true)

	action := BusyFail
	err := callSafely(c.logger, "busy handler", func() error {
		var err error
		action, err = h.HandleBusy(count)
		return err
	})
	if err != nil {
		c.logger.Debug("busy handler failed, not retrying", zap.Int("count", count), zap.Error(err))
		return 0
	}
	if action == BusyRetry {
		return 1
	}
	return 0
}

// traceCallback reports the statement text with bound parameters expanded.
// p is the sqlite3_stmt*, x the unexpanded text or a "--" trigger comment.
func traceCallback(token uintptr, p uintptr, x uintptr) {
	c := connFromToken(token)
	if c == nil || c.trace == nil {
		return
	}
	h := c.trace
	text := copyCString(unsafe.Pointer(x))
	sql := text
	if !strings.HasPrefix(text, "--") && p != 0 {
		if expanded := sqlite3_expanded_sql(sqliteStmt(unsafe.Pointer(p))); expanded != "" {
			sql = expanded
		}
	}

	c.enterCallback(false)
	defer c.leaveCallback(false)
	if err := callSafely(c.logger, "trace handler", func() error { return h.HandleTrace(sql) }); err != nil {
		c.logger.Debug("trace handler failed", zap.String("sql", sql), zap.Error(err))
	}
}

// progressCallback returns non-zero to abort the running statement.
// The handler error is kept on the connection and attached to the resulting
// interrupt error.
func progressCallback(token uintptr) int32 {
	c := connFromToken(token)
	if c == nil || c.progress == nil {
		return 0
	}
	h := c.progress
	c.enterCallback(true)
	defer c.leaveCallback(true)

	err := callSafely(c.logger, "progress handler", h.HandleProgress)
	if err != nil {
		c.callbackErr = err
		return 1
	}
	return 0
}

func functionCallback(ctxPtr uintptr, argc int, argv uintptr) {
	ctx := sqliteContext(unsafe.Pointer(ctxPtr))
	entry, _ := handles.get(c_sqlite3_user_data(unsafe.Pointer(ctx))).(*functionEntry)
	if entry == nil {
		c_sqlite3_result_error(unsafe.Pointer(ctx), "function is no longer registered", -1)
		return
	}

	args := make([]*RawValue, argc)
	if argc > 0 {
		ptrs := unsafe.Slice((*sqliteValue)(unsafe.Pointer(argv)), argc)
		for i, p := range ptrs {
			args[i] = &RawValue{ptr: p}
		}
	}
	defer func() {
		for _, a := range args {
			a.invalidate()
		}
	}()

	c := entry.conn
	c.enterCallback(false)
	defer c.leaveCallback(false)

	var result Value
	err := callSafely(c.logger, "function "+entry.key.name, func() error {
		var err error
		result, err = entry.fn.Call(args)
		return err
	})
	setResult(ctx, result, err)
}

func destroyCallback(token uintptr) {
	entry, _ := handles.get(token).(*functionEntry)
	handles.remove(token)
	if entry != nil {
		entry.conn.forgetFunction(entry.key, token)
	}
}

// setResult hands a function's outcome back to the engine; all bytes are copied.
func setResult(ctx sqliteContext, v Value, err error) {
	p := unsafe.Pointer(ctx)
	if err != nil {
		c_sqlite3_result_error(p, err.Error(), -1)
		return
	}
	switch v.kind {
	case KindNull:
		c_sqlite3_result_null(p)
	case KindInteger:
		c_sqlite3_result_int64(p, v.i)
	case KindInteger32:
		c_sqlite3_result_int(p, int32(v.i))
	case KindFloat:
		c_sqlite3_result_double(p, v.f)
	case KindText:
		sqlite3_result_text(ctx, v.b)
	case KindBlob:
		sqlite3_result_blob(ctx, v.b)
	case KindRaw:
		h, err := v.raw.handle()
		if err != nil {
			c_sqlite3_result_error(p, err.Error(), -1)
			return
		}
		c_sqlite3_result_value(p, unsafe.Pointer(h))
	default:
		c_sqlite3_result_error(p, "unsupported result kind "+v.kind.String(), -1)
	}
}
