package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/javachat/javachat-cli/internal/chat"
	"gopkg.in/yaml.v3"
)

type config struct {
	ServerURL  string `yaml:"serverUrl"`
	IDStrategy string `yaml:"idStrategy"`
	PrefsPath  string `yaml:"prefsPath"`
	LogLevel   string `yaml:"logLevel"`
}

const defaultServerURL = "http://localhost:8080/api"

// loadConfig reads config.yaml from the user config dir. A missing file is
// not an error; defaults apply, and JAVACHAT_SERVER_URL overrides the server
// URL either way.
func loadConfig() (config, string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, "", fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "javachat")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		return config{}, "", fmt.Errorf("error creating config directory: %w", err)
	}

	cfg := config{ServerURL: defaultServerURL}

	cfgFile, err := os.Open(filepath.Join(cfgPath, "config.yaml"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, "", fmt.Errorf("error opening config file: %w", err)
	default:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
			return config{}, "", fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if url := os.Getenv("JAVACHAT_SERVER_URL"); url != "" {
		cfg.ServerURL = url
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if cfg.PrefsPath == "" {
		cfg.PrefsPath = filepath.Join(cfgPath, "prefs.db")
	}

	return cfg, cfgPath, nil
}

func (c config) idStrategy() (chat.IDStrategy, error) {
	switch c.IDStrategy {
	case "", "backend":
		return chat.BackendIDs{}, nil
	case "local":
		return chat.LocalIDs{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy: %s", c.IDStrategy)
	}
}

func (c config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}
