// Package config loads the bimgraph CLI configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up under the user config
// directory when no explicit path is given.
const FileName = "config.yaml"

// Config is the CLI configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// Language selects the issue message catalogue.
	Language string `yaml:"language" validate:"oneof=en ja"`
	// Schema is a schema file (YAML or JSON). Empty selects the embedded
	// IFC4 core schema.
	Schema string `yaml:"schema,omitempty"`
	Store  Store  `yaml:"store"`
	Output Output `yaml:"output"`
	Mesh   Mesh   `yaml:"mesh"`
}

// Store configures the snapshot store.
type Store struct {
	Dir        string `yaml:"dir" validate:"required"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// Output configures document export and terminal rendering.
type Output struct {
	Format string `yaml:"format" validate:"oneof=json yaml msgpack"`
	Pretty bool   `yaml:"pretty"`
	// Color is auto (terminals only), always or never.
	Color string `yaml:"color" validate:"oneof=auto always never"`
}

// Mesh configures content hashing.
type Mesh struct {
	// Precision is the default number of decimals kept when hashing;
	// negative hashes exact values.
	Precision int `yaml:"precision" validate:"gte=-1,lte=15"`
}

// Default returns the built-in configuration.
func Default() Config {
	dir := ".bimgraph"
	if base, err := os.UserCacheDir(); err == nil {
		dir = filepath.Join(base, "bimgraph", "store")
	}
	return Config{
		LogLevel: "info",
		Language: "en",
		Store:    Store{Dir: dir, SyncWrites: true},
		Output:   Output{Format: "json", Color: "auto"},
		Mesh:     Mesh{Precision: 3},
	}
}

// DefaultPath returns the configuration file under the user config
// directory.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config directory: %w", err)
	}
	return filepath.Join(base, "bimgraph", FileName), nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Load reads path. An empty path means DefaultPath; a missing default file
// yields Default(), a missing explicit file is an error.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SlogLevel maps LogLevel to a slog.Level; unknown names map to Info.
func SlogLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
