package shared

import (
	"regexp"
	"strings"
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9_.-]`)
	leadingJunk      = regexp.MustCompile(`^[^a-z0-9]+`)
	trailingJunk     = regexp.MustCompile(`[^a-z0-9]+$`)
)

// SanitizeName lowercases name, replaces every character outside
// [a-z0-9_.-] with "-" and strips leading and trailing characters that are
// not alphanumeric. The result is valid under the catalog's naming grammar
// and SanitizeName(SanitizeName(x)) == SanitizeName(x).
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = leadingJunk.ReplaceAllString(name, "")
	return trailingJunk.ReplaceAllString(name, "")
}

// EntityName derives the catalog name for a resource from its kind prefix and
// provider identifier. It is a pure function of its inputs so that unchanged
// resources keep their name across runs.
func EntityName(prefix, identifier string) string {
	return SanitizeName(prefix + "-" + identifier)
}
