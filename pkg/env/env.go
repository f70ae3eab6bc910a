// Package env reads raw process environment variables. Most configuration
// goes through envconfig; this covers the few knobs needed before the
// config struct is loaded.
package env

import "os"

// Get returns the named variable, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
