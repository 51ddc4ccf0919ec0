package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}. Only the braced form expands;
// a bare $ passes through so regex patterns, passwords, and shell snippets
// in config values survive intact.
var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*(?::-[^}]*)?\}`)

// ExpandEnv expands environment variable references in YAML content.
//
// Examples:
//   - ${OPENAI_API_KEY}         → value of OPENAI_API_KEY
//   - ${OLLAMA_HOST:-localhost} → value of OLLAMA_HOST, or "localhost"
//     when it is unset or empty
//   - pattern: "^secret.*$"     → untouched (no braces)
//
// A reference without a default expands to the empty string when the
// variable is unset; validation catches required fields that end up empty.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name, fallback, hasFallback := splitEnvRef(ref)
		if value := os.Getenv(name); value != "" {
			return []byte(value)
		}
		if hasFallback {
			return []byte(fallback)
		}
		return nil
	})
}

// splitEnvRef splits "${NAME:-default}" into its name and default parts.
// The leading "${" and trailing "}" are already guaranteed by the pattern.
func splitEnvRef(ref []byte) (name, fallback string, hasFallback bool) {
	body := string(ref[2 : len(ref)-1])
	if i := strings.Index(body, ":-"); i >= 0 {
		return body[:i], body[i+2:], true
	}
	return body, "", false
}
