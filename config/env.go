package config

import (
	"os"
	"strconv"
	"strings"
)

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// IntFromEnv returns the integer value of key, or def when unset or malformed.
func IntFromEnv(key string, def int) int {
	return intFromEnv(key, def)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
