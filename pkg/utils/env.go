// Package utils provides small ambient helpers shared across the indexer's
// CLI and config layers.
package utils

import (
	"os"
	"strconv"
	"sync"
)

// envCache avoids repeat syscalls for environment variables that are read on
// every CLI invocation (e.g. network selection, config path overrides).
var envCache sync.Map // map[string]string

func getEnv(key string) (string, bool) {
	if v, ok := envCache.Load(key); ok {
		return v.(string), true
	}
	if v := os.Getenv(key); v != "" {
		envCache.Store(key, v)
		return v, true
	}
	return "", false
}

func clearEnvCache(key string) {
	envCache.Delete(key)
}

// EnvOrDefault returns the environment variable named by key, or fallback if
// it is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v, ok := getEnv(key); ok {
		return v
	}
	return fallback
}

// EnvOrDefaultUint64 parses the environment variable named by key as a
// base-10 uint64, falling back on absence or parse failure. Used for fuel
// budget and activation-height overrides.
func EnvOrDefaultUint64(key string, fallback uint64) uint64 {
	if v, ok := getEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// EnvOrDefaultBool parses the environment variable named by key as a bool,
// falling back on absence or parse failure. Used for trace-enable flags.
func EnvOrDefaultBool(key string, fallback bool) bool {
	if v, ok := getEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
