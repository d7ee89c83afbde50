package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".flick", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestCachePath(t *testing.T) {
	got := CachePath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "cache.db")) {
		t.Errorf("CachePath(test) = %q, want suffix sessions/test/cache.db", got)
	}
}

func TestTokenPath(t *testing.T) {
	got := TokenPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "token")) {
		t.Errorf("TokenPath(test) = %q, want suffix sessions/test/token", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestFileTokenSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("tok-123\n"), 0600); err != nil {
		t.Fatal(err)
	}

	src := &FileTokenSource{path: path}
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "tok-123" {
		t.Errorf("Token() = %q, want tok-123", tok)
	}
}

func TestFileTokenSourceMissing(t *testing.T) {
	src := &FileTokenSource{path: filepath.Join(t.TempDir(), "token")}
	if _, err := src.Token(); err == nil {
		t.Error("Token() expected error for missing file")
	}
}

func TestStaticTokenSourceEmpty(t *testing.T) {
	if _, err := StaticTokenSource("").Token(); err == nil {
		t.Error("empty static token should error")
	}
}
