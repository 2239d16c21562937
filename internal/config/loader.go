package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment variables recognised as overrides. The first four keep the names
// the printer service has always been deployed with.
const (
	EnvDryRun       = "DRY_RUN"
	EnvPrinterModel = "PRINTER_MODEL"
	EnvPrinterTape  = "PRINTER_TAPE"
	EnvPrinterURI   = "BROTHER_QL_PRINTER"
	EnvOutputDir    = "LABELS_OUTPUT_DIR"
	EnvListen       = "LABELGW_LISTEN"
	EnvLogLevel     = "LABELGW_LOG_LEVEL"
	EnvAPIKey       = "LABELGW_API_KEY"
	EnvDriver       = "LABELGW_DRIVER"
	EnvStatePath    = "LABELGW_STATE_PATH"
	EnvSpoolDir     = "LABELGW_SPOOL_DIR"
)

// Load builds the configuration. When configPath is empty only defaults and
// environment overrides are used; otherwise the YAML file is read first.
// Environment variables always win over file values.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}

		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, err
		}
		cfg.SourceFile = absPath
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadConfigFile parses path on top of the values already in cfg, so keys the
// file omits keep their defaults.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvDryRun); ok {
		cfg.DryRun = strings.ToLower(strings.TrimSpace(v)) == "true"
	}
	if v, ok := lookupNonEmpty(EnvPrinterModel); ok {
		cfg.Printer.Model = v
	}
	if v, ok := lookupNonEmpty(EnvPrinterTape); ok {
		cfg.Printer.Tape = v
	}
	if v, ok := lookupNonEmpty(EnvPrinterURI); ok {
		cfg.Printer.URI = v
	}
	if v, ok := lookupNonEmpty(EnvOutputDir); ok {
		cfg.Output.Dir = v
	}
	if v, ok := lookupNonEmpty(EnvListen); ok {
		cfg.API.Listen = v
	}
	if v, ok := lookupNonEmpty(EnvLogLevel); ok {
		cfg.Service.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookupNonEmpty(EnvAPIKey); ok {
		cfg.API.Auth.APIKey = v
	}
	if v, ok := lookupNonEmpty(EnvDriver); ok {
		cfg.Printer.Driver = v
	}
	if v, ok := os.LookupEnv(EnvStatePath); ok {
		cfg.State.Path = strings.TrimSpace(v)
	}
	if v, ok := lookupNonEmpty(EnvSpoolDir); ok {
		cfg.Spool.Dir = v
	}
}

func lookupNonEmpty(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// interpolateEnv replaces ${VAR} with environment variable values.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Leave the placeholder; validation reports it if it matters.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.API.Listen) == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	if cfg.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return fmt.Errorf("output.dir must not be empty")
	}
	if strings.TrimSpace(cfg.Spool.Dir) == "" {
		return fmt.Errorf("spool.dir must not be empty")
	}

	p := cfg.Printer
	switch p.Driver {
	case "native", "brother_ql":
	default:
		return fmt.Errorf("printer.driver must be native or brother_ql (got %q)", p.Driver)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("printer.model must not be empty")
	}
	if !cfg.DryRun {
		if strings.TrimSpace(p.URI) == "" {
			return fmt.Errorf("printer.uri is required when dry_run is false")
		}
		if envVarPattern.MatchString(p.URI) {
			return fmt.Errorf("printer.uri references an unset environment variable: %s", p.URI)
		}
	}
	if p.Threshold < 0 || p.Threshold > 100 {
		return fmt.Errorf("printer.threshold must be within 0..100 (got %v)", p.Threshold)
	}
	switch p.Rotate {
	case "auto", "0", "90", "180", "270":
	default:
		return fmt.Errorf("printer.rotate must be auto, 0, 90, 180 or 270 (got %q)", p.Rotate)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("printer.timeout must be positive")
	}
	if p.Serialize && p.LockTimeout <= 0 {
		return fmt.Errorf("printer.lock_timeout must be positive when printer.serialize is set")
	}
	if cfg.Spool.StaleAfter < time.Minute {
		return fmt.Errorf("spool.stale_after must be at least 1m")
	}
	// A queued job's spool file waits out the lock and then the worker; the
	// janitor must never see it as stale.
	if budget := cfg.JobBudget(); cfg.Spool.StaleAfter <= budget {
		return fmt.Errorf("spool.stale_after (%s) must exceed printer.lock_timeout + printer.timeout (%s)", cfg.Spool.StaleAfter, budget)
	}
	if cfg.State.Retention < 0 {
		return fmt.Errorf("state.retention must not be negative")
	}

	return nil
}

// JobBudget is the longest a live print can take: the device lock wait
// (when serialized) plus the worker timeout.
func (c *Config) JobBudget() time.Duration {
	budget := c.Printer.Timeout
	if c.Printer.Serialize {
		budget += c.Printer.LockTimeout
	}
	return budget
}

// LockPath returns the device lock file, defaulting to a file in the spool
// directory.
func (c *Config) LockPath() string {
	if c.Printer.LockPath != "" {
		return c.Printer.LockPath
	}
	return filepath.Join(c.Spool.Dir, "printer.lock")
}

// PIDPath returns the single-instance lock file.
func (c *Config) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Spool.Dir, "labelgw.pid")
}
