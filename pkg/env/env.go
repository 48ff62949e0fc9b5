// Package env reads settings that must be known before config.Load runs,
// such as the log format of the bootstrap logger.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces storefront variables.
const Prefix = "STOREFRONT_"

// Get returns STOREFRONT_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
