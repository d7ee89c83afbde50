package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		API:            APIConfig{BaseURL: "https://api.flick.social"},
		Realtime:       RealtimeConfig{URL: "wss://rt.flick.social"},
		Gif:            GifConfig{BaseURL: "https://tenor.googleapis.com", APIKey: "k"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.API.BaseURL != "https://api.flick.social" {
		t.Errorf("API.BaseURL = %q", loaded.API.BaseURL)
	}
	if loaded.Realtime.URL != "wss://rt.flick.social" {
		t.Errorf("Realtime.URL = %q", loaded.Realtime.URL)
	}
}

func TestLoadAppliesPagingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Paging.ConversationLimit != DefaultConversationPageSize {
		t.Errorf("ConversationLimit = %d, want %d", loaded.Paging.ConversationLimit, DefaultConversationPageSize)
	}
	if loaded.Paging.MessageLimit != DefaultMessagePageSize {
		t.Errorf("MessageLimit = %d, want %d", loaded.Paging.MessageLimit, DefaultMessagePageSize)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
