// Package session lays out the on-disk state of one imsyncd instance. Each
// session is a signed-in account with its own directory:
//
//	$IMSYNC_HOME/config.toml
//	$IMSYNC_HOME/sessions/<name>/daemon.sock
//	$IMSYNC_HOME/sessions/<name>/LOCK
//	$IMSYNC_HOME/sessions/<name>/imsync.db
//	$IMSYNC_HOME/sessions/<name>/logs/imsyncd.log
package session

import (
	"os"
	"path/filepath"
)

// BaseDirEnv relocates every session, e.g. to a temp dir in tests.
const BaseDirEnv = "IMSYNC_HOME"

// BaseDir returns ~/.imsync, or $IMSYNC_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(BaseDirEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".imsync")
}

// Dir holds everything owned by the named session.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath is where imsyncd serves the gRPC API that imctl dials.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath is the file that keeps a second daemon off the same account.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// AppDBPath is the SQLite cache of rooms, checkpoints and the outbox.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "imsync.db")
}

// LogDir holds the daemon's log files.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath is the active imsyncd log file.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "imsyncd.log")
}

// ConfigPath is shared by all sessions; it also names the default one.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session and log directories, readable by the owner only.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
