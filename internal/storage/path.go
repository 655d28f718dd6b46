package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const maxUploadNameLen = 128

// BuildUploadPath returns uploads/<fileID>/<name> where name is the original
// upload name reduced to safe characters.
func BuildUploadPath(fileID, originalName string) (string, error) {
	if err := validatePathComponent(fileID, "file id"); err != nil {
		return "", err
	}
	name := sanitizeUploadName(originalName)
	if err := validatePathComponent(name, "upload name"); err != nil {
		return "", err
	}
	return path.Join("uploads", fileID, name), nil
}

func sanitizeUploadName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._-")
	if len(out) > maxUploadNameLen {
		out = out[len(out)-maxUploadNameLen:]
		out = strings.TrimLeft(out, "._-")
	}
	if out == "" {
		return "upload"
	}
	return out
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
