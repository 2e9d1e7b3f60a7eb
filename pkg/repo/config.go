package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the repository-local configuration file under .got/.
const ConfigFileName = "config.toml"

// Config stores repository-local settings.
type Config struct {
	Archive ArchiveConfig `toml:"archive"`
}

// ArchiveConfig holds defaults for archive exports. Zero values mean "use
// the built-in default".
type ArchiveConfig struct {
	Format           string `toml:"format,omitempty"`
	Level            int    `toml:"level,omitempty"`
	Comment          string `toml:"comment,omitempty"`
	Prefix           string `toml:"prefix,omitempty"`
	RequireSignature bool   `toml:"require_signature,omitempty"`
	AllowedSigners   string `toml:"allowed_signers,omitempty"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GotDir, ConfigFileName)
}

// ReadConfig reads .got/config.toml. Missing config returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	return LoadConfigFile(r.configPath())
}

// LoadConfigFile decodes a TOML config file. A missing file yields an empty
// config; unknown keys are rejected so typos do not silently fall back to
// defaults.
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read config %s: unknown key %q", path, undecoded[0].String())
	}
	return &cfg, nil
}

// WriteConfig atomically writes .got/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(r.GotDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
