package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "FIELDNOTES_CONFIG"

// Config holds every setting the server needs. Values come from an optional
// YAML file pointed at by FIELDNOTES_CONFIG, overridden by environment
// variables.
type Config struct {
	Port           string `yaml:"port"`
	BaseURL        string `yaml:"baseUrl"`
	DataDir        string `yaml:"dataDir"`
	MaxUploadBytes int64  `yaml:"-"`
	MaxUploadMB    int64  `yaml:"maxUploadMb"`
	MaxImages      int    `yaml:"maxImages"`

	ShareSecret string        `yaml:"shareSecret"`
	ShareTTL    time.Duration `yaml:"-"`
	ShareTTLS   int64         `yaml:"shareTtlSeconds"`

	Transcriber TranscriberConfig `yaml:"transcriber"`
}

// TranscriberConfig selects and tunes the transcription backend.
type TranscriberConfig struct {
	// Backend is "whisper" (local subprocess) or "remote" (HTTP service).
	Backend string `yaml:"backend"`
	// Command is the whisper subprocess invocation; the audio path is
	// appended as the final argument.
	Command []string `yaml:"command"`
	// RemoteURL is the base URL of the remote transcription service.
	RemoteURL string        `yaml:"remoteUrl"`
	Timeout   time.Duration `yaml:"-"`
	TimeoutS  int64         `yaml:"timeoutSeconds"`
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Port:        "8080",
		DataDir:     "data",
		MaxUploadMB: 50,
		MaxImages:   10,
		ShareSecret: "change-me",
		ShareTTLS:   86400,
		Transcriber: TranscriberConfig{
			Backend:  "whisper",
			Command:  []string{"python3", "scripts/transcribe.py"},
			TimeoutS: 300,
		},
	}

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	cfg.MaxUploadBytes = cfg.MaxUploadMB * 1024 * 1024
	cfg.ShareTTL = time.Duration(cfg.ShareTTLS) * time.Second
	cfg.Transcriber.Timeout = time.Duration(cfg.Transcriber.TimeoutS) * time.Second

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.Port = envOrDefault("PORT", c.Port)
	c.BaseURL = envOrDefault("BASE_URL", c.BaseURL)
	c.DataDir = envOrDefault("DATA_DIR", c.DataDir)
	c.ShareSecret = envOrDefault("SHARE_SECRET", c.ShareSecret)
	c.Transcriber.Backend = envOrDefault("TRANSCRIBE_BACKEND", c.Transcriber.Backend)
	c.Transcriber.RemoteURL = envOrDefault("TRANSCRIBE_URL", c.Transcriber.RemoteURL)

	if v := os.Getenv("TRANSCRIBE_COMMAND"); v != "" {
		c.Transcriber.Command = strings.Fields(v)
	}

	var err error
	if c.MaxUploadMB, err = parseIntEnv("MAX_UPLOAD_MB", c.MaxUploadMB); err != nil {
		return fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	maxImages, err := parseIntEnv("MAX_IMAGES", int64(c.MaxImages))
	if err != nil {
		return fmt.Errorf("parse MAX_IMAGES: %w", err)
	}
	c.MaxImages = int(maxImages)

	if c.Transcriber.TimeoutS, err = parseIntEnv("TRANSCRIBE_TIMEOUT_SECONDS", c.Transcriber.TimeoutS); err != nil {
		return fmt.Errorf("parse TRANSCRIBE_TIMEOUT_SECONDS: %w", err)
	}
	if c.ShareTTLS, err = parseIntEnv("SHARE_TTL_SECONDS", c.ShareTTLS); err != nil {
		return fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
