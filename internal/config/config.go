// Package config provides application configuration management with support for environment variables, command-line flags, .env files and a JSON settings file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Watch   WatchConfig
	Journal JournalConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
	// File is an optional rotating log file. Empty logs to stderr only.
	File string
}

// WatchConfig holds external-change reconciliation settings.
type WatchConfig struct {
	// DebounceWindow is the trailing quiet window per path (default: 300ms)
	DebounceWindow time.Duration
	// SelfWriteTimeout bounds how long a save suppresses changes (default: 2s)
	SelfWriteTimeout time.Duration
	// ReattachInterval is how often a lost watch is retried (default: 2s)
	ReattachInterval time.Duration
	// FingerprintMode is content or stat (default: content)
	FingerprintMode string
	// Backend is auto, inotify or fsnotify (default: auto)
	Backend string
	// ResyncPerSecond limits lost-event recoveries per document (default: 2)
	ResyncPerSecond float64
}

// JournalConfig holds document journal configuration.
type JournalConfig struct {
	// Enabled turns the journal on (default: true)
	Enabled bool
	// Path is the SQLite file (default: ~/.docwatch/journal.db)
	Path string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. JSON settings file.
// 5. Default values (lowest priority).
//
// Arguments left after the flags are returned as well.
func LoadConfig(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("docwatch", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "Rotating log file (default: stderr only)")

	// Watch flags
	debounceWindow := fs.String("debounce-window-ms", "", "Debounce quiet window in milliseconds (default: 300)")
	selfWriteTimeout := fs.String("self-write-timeout-ms", "", "Self-write suppression timeout in milliseconds (default: 2000)")
	reattachInterval := fs.String("reattach-interval", "", "Retry interval for a lost watch (default: 2s)")
	fingerprintMode := fs.String("fingerprint", "", "Fingerprint mode: content or stat (default: content)")
	backend := fs.String("watch-backend", "", "Watcher backend: auto, inotify or fsnotify (default: auto)")
	resyncRate := fs.String("resync-per-second", "", "Lost-event recoveries per document per second (default: 2)")

	// Journal flags
	journalEnabled := fs.String("journal", "", "Keep a document journal (default: true)")
	journalPath := fs.String("journal-path", "", "Path to the journal database")

	envFile := fs.String("env-file", ".env", "Path to .env file")
	settingsFile := fs.String("settings", "", "Path to a JSON settings file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	settings, err := LoadSettings(getConfigValue(*settingsFile, "SETTINGS_FILE", ""))
	if err != nil {
		return nil, nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			File:  getConfigValue(*logFile, "LOG_FILE", ""),
		},
		Watch: WatchConfig{
			DebounceWindow:   getMillisConfigValue(*debounceWindow, "DEBOUNCE_WINDOW_MS", settings.debounceWindow()),
			SelfWriteTimeout: getMillisConfigValue(*selfWriteTimeout, "SELF_WRITE_TIMEOUT_MS", settings.selfWriteTimeout()),
			FingerprintMode:  getConfigValue(*fingerprintMode, "FINGERPRINT_MODE", settings.fingerprintMode()),
			Backend:          getConfigValue(*backend, "WATCH_BACKEND", "auto"),
		},
		Journal: JournalConfig{
			Enabled: getBoolConfigValue(*journalEnabled, "JOURNAL_ENABLED", true),
			Path:    getConfigValue(*journalPath, "JOURNAL_PATH", ""),
		},
	}

	reattachStr := getConfigValue(*reattachInterval, "REATTACH_INTERVAL", "2s")
	reattach, err := time.ParseDuration(reattachStr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid reattach interval %q: %w", reattachStr, err)
	}
	cfg.Watch.ReattachInterval = reattach

	rateStr := getConfigValue(*resyncRate, "RESYNC_PER_SECOND", "2")
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid resync rate %q: %w", rateStr, err)
	}
	cfg.Watch.ResyncPerSecond = rate

	if err := cfg.expandJournalPath(); err != nil {
		return nil, nil, fmt.Errorf("invalid journal path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, fs.Args(), nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Watch.DebounceWindow <= 0 {
		return fmt.Errorf("invalid debounce window: %s (must be positive)", c.Watch.DebounceWindow)
	}
	if c.Watch.SelfWriteTimeout <= c.Watch.DebounceWindow {
		return fmt.Errorf("self-write timeout %s must exceed the debounce window %s", c.Watch.SelfWriteTimeout, c.Watch.DebounceWindow)
	}
	if c.Watch.ReattachInterval <= 0 {
		return fmt.Errorf("invalid reattach interval: %s (must be positive)", c.Watch.ReattachInterval)
	}

	switch c.Watch.FingerprintMode {
	case "content", "stat":
	default:
		return fmt.Errorf("invalid fingerprint mode: %s (must be content or stat)", c.Watch.FingerprintMode)
	}

	switch strings.ToLower(c.Watch.Backend) {
	case "auto", "inotify", "fsnotify":
	default:
		return fmt.Errorf("invalid watch backend: %s (must be auto, inotify, or fsnotify)", c.Watch.Backend)
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("journal path cannot be empty after expansion")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandJournalPath expands ~ and makes the path absolute.
func (c *Config) expandJournalPath() error {
	if !c.Journal.Enabled {
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, ".docwatch", "journal.db")

	expanded, err := expandPath(c.Journal.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Journal.Path = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getMillisConfigValue returns a duration given in whole milliseconds from
// flag, env var, or default. Unparseable values fall back to the default.
func getMillisConfigValue(flagValue, envKey string, defaultValue time.Duration) time.Duration {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
