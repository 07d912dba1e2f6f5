package utils

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
)

// GetEnv returns the value of an environment variable, falling back to the
// provided default when unset or empty.
func GetEnv(key string, fallback ...string) string {
	value := os.Getenv(key)
	if value == "" && len(fallback) > 0 {
		return fallback[0]
	}
	return value
}

// GetEnvFloat parses a float environment variable with a fallback.
func GetEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvInt parses an integer environment variable with a fallback.
func GetEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// CreateFolder creates a directory (and parents) if it does not exist.
func CreateFolder(folderPath string) error {
	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		if err := os.MkdirAll(folderPath, 0755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", folderPath, err)
		}
	}
	return nil
}

// GenerateUniqueID returns a random 32-bit identifier used to suffix
// generated resource names.
func GenerateUniqueID() uint32 {
	return rand.Uint32()
}
