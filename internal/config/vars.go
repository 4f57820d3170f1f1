package config

import (
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const escapePlaceholder = "\x00ESCAPED_VAR\x00"

// Interpolate replaces ${name} with vars[name]. Unknown names are kept as
// written and $${name} yields a literal ${name}.
func Interpolate(s string, vars map[string]string) string {
	s = strings.ReplaceAll(s, "$${", escapePlaceholder)
	s = varPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := vars[match[2:len(match)-1]]; ok {
			return val
		}
		return match
	})
	return strings.ReplaceAll(s, escapePlaceholder, "${")
}
