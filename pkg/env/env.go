package env

import "os"

// Get returns the value of the given environment variable, falling back when
// the variable is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
