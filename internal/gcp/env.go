package gcp

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable, returning fallback when it
// is unset or malformed.
func GetEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Ignoring malformed integer environment variable.", "key", key, "value", value)
		return fallback
	}
	return n
}

// GetEnvBool reads a boolean environment variable ("true", "1", ...).
func GetEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Ignoring malformed boolean environment variable.", "key", key, "value", value)
		return fallback
	}
	return b
}

// LoadDotEnv loads a .env file for local runs. Variables already present in
// the environment win. A missing file is not an error.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		slog.Debug("No .env file loaded, reading from environment.", "error", err)
	}
}
