package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(BaseDirEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".imsync", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(BaseDirEnv, base)
	if got := ConfigPath(); got != filepath.Join(base, "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name   string
		got    string
		suffix string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"db", AppDBPath("test"), filepath.Join("sessions", "test", "imsync.db")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "imsyncd.log")},
	}
	for _, tt := range tests {
		if !strings.HasSuffix(tt.got, tt.suffix) {
			t.Errorf("%s path = %q, want suffix %s", tt.name, tt.got, tt.suffix)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("%s not created: %v", dir, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %v", dir, info.Mode())
		}
	}
}
