package mlsqlite

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LoadLibraryConfig tells InitLibrary where to find the SQLite shared library.
type LoadLibraryConfig struct {
	// Path of the library to load. When empty, MLSQLITE_LIB_PATH is consulted
	// and then the usual system library names for the platform.
	Path string
}

var (
	libOnce sync.Once
	libErr  error
	libPath string
)

// InitLibrary loads the engine and registers every C entry point used by the package.
// Only the first call does any work; later calls return its outcome. Open calls
// InitLibrary with a zero config, so explicit calls are only needed to pick a library.
func InitLibrary(config LoadLibraryConfig) error {
	libOnce.Do(func() {
		library, path, err := loadLibrary(config)
		if err != nil {
			libErr = fmt.Errorf("mlsqlite: unable to load sqlite library: %w", err)
			return
		}
		if err := register_sqlite3_db(library); err != nil {
			libErr = fmt.Errorf("mlsqlite: %s: %w", path, err)
			return
		}
		register_sqlite3_callbacks()
		libPath = path
		Logger().Debug("sqlite library loaded",
			zap.String("path", path),
			zap.String("version", sqlite3_libversion()))
	})
	return libErr
}

// LibraryPath reports which library file InitLibrary loaded, or "" if none was.
func LibraryPath() string {
	if InitLibrary(LoadLibraryConfig{}) != nil {
		return ""
	}
	return libPath
}
