// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/wlsplit/internal/model"
)

// FileConfig represents the TOML configuration file. Nil fields were not set.
type FileConfig struct {
	Display  *string   `toml:"display"`
	Socket   *string   `toml:"socket"`
	Tick     *Duration `toml:"tick"`
	LogLevel *string   `toml:"log-level"`
	DB       *string   `toml:"db"`
}

// Duration decodes TOML strings such as "10ms" or "1s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("%w: config path is empty", model.ErrConfig)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("%w: failed to stat config: %w", model.ErrConfig, err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("%w: failed to decode config: %w", model.ErrConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return FileConfig{}, fmt.Errorf("%w: unknown config keys: %s", model.ErrConfig, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Template is written when the config command creates a new file.
const Template = `# wlsplit configuration. Command-line flags override these values.

# display = "terminal"   # terminal | headless
# socket = "/run/user/1000/wlsplit.sock"
# tick = "10ms"
# log-level = "info"
# db = "~/.local/share/wlsplit/wlsplit.db"
`
