package env

import "os"

// Get reads key from the environment, returning fallback when the variable is
// unset or empty. Empty values count as unset so a blank override in a deploy
// manifest cannot wipe a default.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
