package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errInvalidFormat      = errors.New("invalid format (must be json or yaml)")
	errInvalidLogLevel    = errors.New("invalid log level (must be debug, info, warn or error)")
	errInvalidLockTimeout = errors.New("invalid lock timeout")
)

// Config holds all configuration options.
type Config struct {
	Engine       string `json:"engine"`
	Format       string `json:"format"`
	StrictDecode bool   `json:"strict_decode"`
	LockFiles    bool   `json:"lock_files"`
	LockTimeout  string `json:"lock_timeout"`
	LogLevel     string `json:"log_level"`

	// Resolved values (computed, not serialized)
	EffectiveCwd   string        `json:"-"`
	LockTimeoutDur time.Duration `json:"-"`
	LogLevelParsed slog.Level    `json:"-"`
	Sources        ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// fileConfig is one config file. Pointers tell "unset" from zero values.
type fileConfig struct {
	Engine       *string `json:"engine"`
	Format       *string `json:"format"`
	StrictDecode *bool   `json:"strict_decode"`
	LockFiles    *bool   `json:"lock_files"`
	LockTimeout  *string `json:"lock_timeout"`
	LogLevel     *string `json:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Engine:      engine.Default,
		Format:      formatJSON,
		LockTimeout: "10s",
		LogLevel:    "warn",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".sqldoc.json"

// globalConfigPath returns $XDG_CONFIG_HOME/sqldoc/config.json, falling back
// to ~/.config/sqldoc/config.json. Empty when neither variable is set.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "sqldoc", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "sqldoc", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       fileConfig        // flag values that were set
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/sqldoc/config.json)
// 3. Project config file (.sqldoc.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. Flag overrides.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := DefaultConfig()

	if path := globalConfigPath(input.Env); path != "" {
		globalCfg, loaded, err := loadConfigFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = mergeConfig(cfg, globalCfg)
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = mergeConfig(cfg, input.Overrides)
	cfg.EffectiveCwd = workDir

	err = resolveConfig(&cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadConfigFile reads a JSONC config file. Missing files are not an error
// unless mustExist is set.
func loadConfigFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return fileConfig{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return fileConfig{}, false, nil
		}

		return fileConfig{}, false, fmt.Errorf("%w %s: %w", errConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg fileConfig

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base Config, overlay fileConfig) Config {
	if overlay.Engine != nil {
		base.Engine = *overlay.Engine
	}

	if overlay.Format != nil {
		base.Format = *overlay.Format
	}

	if overlay.StrictDecode != nil {
		base.StrictDecode = *overlay.StrictDecode
	}

	if overlay.LockFiles != nil {
		base.LockFiles = *overlay.LockFiles
	}

	if overlay.LockTimeout != nil {
		base.LockTimeout = *overlay.LockTimeout
	}

	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}

	return base
}

// resolveConfig validates cfg and fills the parsed fields.
func resolveConfig(cfg *Config) error {
	_, err := engine.ByName(cfg.Engine)
	if err != nil {
		return err
	}

	err = validateFormat(cfg.Format)
	if err != nil {
		return err
	}

	timeout, err := time.ParseDuration(cfg.LockTimeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("%w: %q", errInvalidLockTimeout, cfg.LockTimeout)
	}

	cfg.LockTimeoutDur = timeout

	err = cfg.LogLevelParsed.UnmarshalText([]byte(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, cfg.LogLevel)
	}

	return nil
}
