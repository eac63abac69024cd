package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mantle-decode/internal/decode"
)

// Config is the config file (~/.config/mantle-decode/config.yaml). Decoding
// options are pointers so an unset key keeps the built-in default.
type Config struct {
	ModelsDir     string `yaml:"models_dir"`
	Model         string `yaml:"model"`
	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`

	Decode decode.Options `yaml:"decode"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mantle-decode", "config.yaml")
}

// loadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyModelConfig fills the model flags from the config file when they
// were not set explicitly.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
}

// resolveDecodeConfig layers the configuration: built-in defaults, then the
// model's special ids, then the config file, then explicit flags.
func resolveDecodeConfig(c *cli.Command, base decode.Config, cfg Config) (decode.Config, error) {
	out := flagOptions(c).Apply(cfg.Decode.Apply(base))
	if err := out.Validate(); err != nil {
		return decode.Config{}, err
	}
	return out, nil
}
