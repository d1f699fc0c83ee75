package mlsqlite

import (
	"errors"
	"fmt"
	"os"
	"runtime"
)

// LibraryPathEnv overrides the location of the SQLite shared library.
const LibraryPathEnv = "MLSQLITE_LIB_PATH"

// libraryCandidates lists the file names tried, in order, for the current platform.
// Bare names go through the dynamic loader search path.
func libraryCandidates() ([]string, error) {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"libsqlite3.dylib",
			"/usr/lib/libsqlite3.dylib",
			"/opt/homebrew/opt/sqlite/lib/libsqlite3.dylib",
			"/usr/local/opt/sqlite/lib/libsqlite3.dylib",
		}, nil
	case "linux", "freebsd", "netbsd":
		return []string{
			"libsqlite3.so.0",
			"libsqlite3.so",
			"/usr/local/lib/libsqlite3.so",
		}, nil
	case "windows":
		return []string{"sqlite3.dll", "winsqlite3.dll"}, nil
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// loadLibrary opens the first loadable candidate and returns its handle and path.
// An explicit path (config or environment) is the only candidate when set.
func loadLibrary(config LoadLibraryConfig) (uintptr, string, error) {
	var candidates []string
	switch {
	case config.Path != "":
		candidates = []string{config.Path}
	case os.Getenv(LibraryPathEnv) != "":
		candidates = []string{os.Getenv(LibraryPathEnv)}
	default:
		var err error
		if candidates, err = libraryCandidates(); err != nil {
			return 0, "", err
		}
	}

	var errs []error
	for _, candidate := range candidates {
		handle, err := openLibrary(candidate)
		if err == nil {
			return handle, candidate, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
	}
	return 0, "", errors.Join(errs...)
}
