// Package mlsqlite binds the SQLite C library to Go without cgo.
//
// The system libsqlite3 is loaded at runtime with purego (see InitLibrary and
// MLSQLITE_LIB_PATH). On top of it the package offers two layers:
//
//   - Conn and Stmt: prepared statements with typed Value binding, in-place
//     recompilation after schema changes, busy/trace/progress handlers, scalar
//     SQL functions written in Go, zero-copy large blob binding and incremental
//     blob I/O.
//   - A database/sql driver registered as "mlsqlite", configured through the
//     DSN or a Connector.
//
// A Conn is not safe for concurrent use. Handlers and functions run
// synchronously on the goroutine that stepped the statement.
//
// Basic usage:
//
//	conn, err := mlsqlite.Open("app.db")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	stmt, _, err := conn.Prepare("SELECT name FROM users WHERE id = ?", 0)
//	if err != nil {
//		return err
//	}
//	defer stmt.Finalize()
//	if err := stmt.Bind(1, mlsqlite.Integer(42)); err != nil {
//		return err
//	}
//	for {
//		r, err := stmt.Step()
//		if err != nil {
//			return err
//		}
//		if r == mlsqlite.Done {
//			break
//		}
//		name, _ := stmt.Column(0)
//		fmt.Println(name.Text())
//	}
package mlsqlite
