package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/listenupapp/docwatch/internal/validation"
)

// Settings is the JSON settings file. Zero values mean "use the default".
type Settings struct {
	DebounceWindowMs   int    `json:"debounceWindowMs" validate:"omitempty,gte=50,lte=5000"`
	SelfWriteTimeoutMs int    `json:"selfWriteTimeoutMs" validate:"omitempty,gte=100,lte=60000"`
	FingerprintMode    string `json:"fingerprintMode,omitempty" validate:"omitempty,oneof=content stat"`
}

// Default values for settings left unset.
const (
	DefaultDebounceWindow   = 300 * time.Millisecond
	DefaultSelfWriteTimeout = 2 * time.Second
	DefaultFingerprintMode  = "content"
)

// LoadSettings reads and validates the settings file at path. An empty path
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := validation.New().Validate(s); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) debounceWindow() time.Duration {
	if s.DebounceWindowMs == 0 {
		return DefaultDebounceWindow
	}
	return time.Duration(s.DebounceWindowMs) * time.Millisecond
}

func (s Settings) selfWriteTimeout() time.Duration {
	if s.SelfWriteTimeoutMs == 0 {
		return DefaultSelfWriteTimeout
	}
	return time.Duration(s.SelfWriteTimeoutMs) * time.Millisecond
}

func (s Settings) fingerprintMode() string {
	if s.FingerprintMode == "" {
		return DefaultFingerprintMode
	}
	return s.FingerprintMode
}
