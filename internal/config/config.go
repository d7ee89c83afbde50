package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults applied when a field is absent from the file.
const (
	DefaultConversationPageSize = 8
	DefaultMessagePageSize      = 20
)

// Config represents the global ~/.flick/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	UserID         string         `toml:"user_id"`
	API            APIConfig      `toml:"api"`
	Realtime       RealtimeConfig `toml:"realtime"`
	Gif            GifConfig      `toml:"gif"`
	Paging         PagingConfig   `toml:"paging"`
}

// APIConfig points at the REST backend.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
}

// RealtimeConfig points at the realtime gateway.
type RealtimeConfig struct {
	URL string `toml:"url"`
}

// GifConfig configures the external GIF metadata provider.
type GifConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// PagingConfig holds page sizes for cursor-paginated fetches.
type PagingConfig struct {
	ConversationLimit int `toml:"conversation_limit"`
	MessageLimit      int `toml:"message_limit"`
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.Paging.ConversationLimit <= 0 {
		c.Paging.ConversationLimit = DefaultConversationPageSize
	}
	if c.Paging.MessageLimit <= 0 {
		c.Paging.MessageLimit = DefaultMessagePageSize
	}
}
