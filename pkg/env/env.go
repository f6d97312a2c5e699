package env

import (
	"os"
	"strings"
)

// Prefix namespaces the service's environment variables.
const Prefix = "ALPHACUT_"

// Get returns the first non-blank value of ALPHACUT_<key> or <key>, or fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
