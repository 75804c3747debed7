package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
)

var ErrInvalidThreshold = errors.New("threshold must be within [0, 255]")

// EnvOrDefault returns the value of the environment variable key parsed as
// T, or defaultValue when it is unset or unparsable.
func EnvOrDefault[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

// LoadDotEnv populates the environment from the file named by
// COLORDIFF_ENV_FILE, or ".env". Variables already set win. A missing file is
// not an error.
func LoadDotEnv() error {
	path := EnvOrDefault("COLORDIFF_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return xerrors.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ParseThreshold validates a threshold read from a flag, form field or
// environment variable.
func ParseThreshold(v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, xerrors.Errorf("%d: %w", v, ErrInvalidThreshold)
	}
	return uint8(v), nil
}
