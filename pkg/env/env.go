// Package env reads relay settings from the process environment. A .env file
// in the working directory is loaded first when present.
package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

var ErrEnvEmpty = errors.New("environment variable has an empty value")

// Lookup returns the trimmed value of envName. Blank values count as unset.
func Lookup(envName string) (string, error) {
	if envName == "" {
		return "", errors.New("environment variable name should not be empty")
	}

	value := strings.TrimSpace(os.Getenv(envName))
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrEnvEmpty, envName)
	}
	return value, nil
}

// orDefault parses envName with parse and falls back on any error.
func orDefault[T any](envName string, defaultValue T, parse func(string) (T, error)) T {
	raw, err := Lookup(envName)
	if err != nil {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvStringOrDefault(envName, defaultValue string) string {
	return orDefault(envName, defaultValue, func(s string) (string, error) { return s, nil })
}

func GetEnvBoolOrDefault(envName string, defaultValue bool) bool {
	return orDefault(envName, defaultValue, strconv.ParseBool)
}

// GetEnvIntOrDefault accepts decimal, 0x and 0o forms.
func GetEnvIntOrDefault(envName string, defaultValue int) int {
	return orDefault(envName, defaultValue, func(s string) (int, error) {
		v, err := strconv.ParseInt(s, 0, 0)
		return int(v), err
	})
}

func GetEnvFloatOrDefault(envName string, defaultValue float64) float64 {
	return orDefault(envName, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvDurationOrDefault accepts Go durations ("1m30s") or whole seconds ("90").
func GetEnvDurationOrDefault(envName string, defaultValue time.Duration) time.Duration {
	return orDefault(envName, defaultValue, parseDuration)
}

func parseDuration(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(s)
}
