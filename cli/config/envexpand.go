// Package config handles concierge.yaml loading for the concierge CLI.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in input.
//
// A set, non-empty variable wins; otherwise the default is used, and an
// unset variable without default expands to the empty string. Secrets that
// end up empty are rejected downstream (the backend refuses a blank token).
func ExpandEnv(input string) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		name := input[m[2]:m[3]]
		def := ""
		if m[4] >= 0 {
			def = input[m[4]:m[5]]
		}
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else {
			b.WriteString(def)
		}
		last = m[1]
	}
	b.WriteString(input[last:])
	return b.String()
}
