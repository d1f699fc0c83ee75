package mlsqlite

import (
	"io"
	"unsafe"
)

func uintptrOf(buf []byte) uintptr { return uintptr(unsafe.Pointer(&buf[0])) }

// BindLargeBlob binds buf as a BLOB without copying it.
//
// buf is pinned and must not be modified until the engine lets go of it, which
// happens when the parameter is rebound, the statement is finalized or the
// binding is cleared; release is then called once. release also runs if the
// bind fails. An empty buf binds a zero-length blob and release runs at once.
func (s *Stmt) BindLargeBlob(pos int, buf []byte, release func()) error {
	h, err := s.stmtHandle("bind")
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		code := sqlite3_bind_blob(h, pos, nil)
		if release != nil {
			release()
		}
		return s.bindError(pos, code)
	}
	// registered first: the engine may call the destructor before returning
	largeBuffers.register(buf, release)
	code := sqlite3_bind_blob_nocopy(h, pos, unsafe.Pointer(&buf[0]), len(buf), releaseTrampoline)
	return s.bindError(pos, code)
}

// BindZeroBlob binds a BLOB of n zero bytes, typically filled later through OpenBlob.
func (s *Stmt) BindZeroBlob(pos int, n int) error {
	h, err := s.stmtHandle("bind")
	if err != nil {
		return err
	}
	if n < 0 || n > sqlite_max_int_size {
		return s.bindError(pos, SQLITE_TOOBIG)
	}
	return s.bindError(pos, Code(c_sqlite3_bind_zeroblob(unsafe.Pointer(h), int32(pos), int32(n))))
}

// ColumnLargeBlob returns a copy of exactly the bytes of column i.
// NULL yields an empty slice.
func (s *Stmt) ColumnLargeBlob(i int) ([]byte, error) {
	h, err := s.columnHandle("column", i)
	if err != nil {
		return nil, err
	}
	return sqlite3_column_bytes_copy(h, i, false), nil
}

// BlobIO is an open handle for incremental I/O on one BLOB cell.
type BlobIO struct {
	conn   *Conn
	handle sqliteBlob
	size   int
}

var (
	_ io.ReaderAt = (*BlobIO)(nil)
	_ io.WriterAt = (*BlobIO)(nil)
	_ io.Closer   = (*BlobIO)(nil)
)

// OpenBlob opens the BLOB in column of the row with the given rowid in table of
// database db ("main", "temp" or an attached name).
func (c *Conn) OpenBlob(db, table, column string, rowid int64, writable bool) (*BlobIO, error) {
	h, err := c.dbHandle("blob open")
	if err != nil {
		return nil, err
	}
	bh, code := sqlite3_blob_open(h, db, table, column, rowid, writable)
	if code != SQLITE_OK {
		return nil, c.lastError("blob open", code)
	}
	b := &BlobIO{conn: c, handle: bh, size: int(c_sqlite3_blob_bytes(unsafe.Pointer(bh)))}
	c.blobs[b] = struct{}{}
	return b, nil
}

func (b *BlobIO) blobHandle(op string) (sqliteBlob, error) {
	if b.handle == nil {
		return nil, closedError(op, "blob")
	}
	if _, err := b.conn.dbHandle(op); err != nil {
		return nil, err
	}
	return b.handle, nil
}

// Size returns the length of the BLOB in bytes.
func (b *BlobIO) Size() int { return b.size }

func (b *BlobIO) ReadAt(p []byte, off int64) (int, error) {
	h, err := b.blobHandle("blob read")
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, misuseError("blob read", "negative offset")
	}
	if off >= int64(b.size) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := len(p)
	if rest := int64(b.size) - off; int64(n) > rest {
		n = int(rest)
	}
	if n == 0 {
		return 0, nil
	}
	if code := sqlite3_blob_read(h, p[:n], int(off)); code != SQLITE_OK {
		return 0, b.conn.lastError("blob read", code)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt overwrites bytes in place. A BLOB cannot grow; writes past Size fail.
func (b *BlobIO) WriteAt(p []byte, off int64) (int, error) {
	h, err := b.blobHandle("blob write")
	if err != nil {
		return 0, err
	}
	if off < 0 || off+int64(len(p)) > int64(b.size) {
		return 0, &Error{Code: SQLITE_ERROR, ExtendedCode: SQLITE_ERROR, Message: "write outside of blob", Op: "blob write"}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if code := sqlite3_blob_write(h, p, int(off)); code != SQLITE_OK {
		return 0, b.conn.lastError("blob write", code)
	}
	return len(p), nil
}

// Reopen moves the handle to another row of the same table and column.
func (b *BlobIO) Reopen(rowid int64) error {
	h, err := b.blobHandle("blob reopen")
	if err != nil {
		return err
	}
	if code := Code(c_sqlite3_blob_reopen(unsafe.Pointer(h), rowid)); code != SQLITE_OK {
		// the handle is aborted, only Close remains valid
		b.size = 0
		return b.conn.lastError("blob reopen", code)
	}
	b.size = int(c_sqlite3_blob_bytes(unsafe.Pointer(h)))
	return nil
}

// Close releases the handle. It is safe to call more than once.
func (b *BlobIO) Close() error {
	if b.handle == nil {
		return nil
	}
	h := b.handle
	b.handle = nil
	delete(b.conn.blobs, b)
	if code := Code(c_sqlite3_blob_close(unsafe.Pointer(h))); code != SQLITE_OK {
		return b.conn.lastError("blob close", code)
	}
	return nil
}
