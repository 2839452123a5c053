package env

import (
	"os"
	"strings"
)

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	return Lookup(fallback, key)
}

// Lookup returns the first non-blank value among keys, or fallback. It serves
// settings read before the typed config loads, with legacy names listed last.
func Lookup(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
