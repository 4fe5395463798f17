package config

import (
	"os"
	"strconv"
	"time"

	"photo-discovery/internal/logging"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
