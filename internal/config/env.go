// Package config provides environment helpers for signal-splat commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by the commands.
const (
	EnvOllamaURL   = "OLLAMA_URL"
	EnvOllamaModel = "OLLAMA_MODEL"
	EnvFallbackURL = "LLM_FALLBACK_URL"
	EnvAPIKey      = "LLM_API_KEY"
	EnvInterface   = "WIFI_IFACE"
	EnvSSID        = "WIFI_SSID"
	EnvPort        = "SPLAT_PORT"
	EnvDB          = "SPLAT_DB"
	EnvPhone       = "SPLAT_PHONE"
	EnvLogLevel    = "LOG_LEVEL"
	EnvSimulate    = "SPLAT_SIMULATE"
	EnvSample      = "SPLAT_SAMPLE_INTERVAL"
)

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an integer, or def when unset or invalid.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Duration returns key parsed with time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Bool returns key parsed with strconv.ParseBool, or def.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
