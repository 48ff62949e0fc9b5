package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases name and joins its alphanumeric runs with underscores.
func slug(name string) string {
	return strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func scaffold(slug string) string {
	var b strings.Builder
	for _, section := range []struct{ marker, note string }{
		{"Up", slug},
		{"Down", "rollback " + slug},
	} {
		if section.marker == "Down" {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- +goose %s\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n", section.marker, section.note)
	}
	return b.String()
}

// CreateSQLMigration writes <dir>/<version>_<slug>.sql with empty Up and Down
// sections and returns its path. An existing file is never overwritten.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, now.UTC().Format(versionLayout)+"_"+s+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("migration already exists: %s", path)
	}
	if err != nil {
		return "", fmt.Errorf("create %q: %w", path, err)
	}
	_, werr := f.WriteString(scaffold(s))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", fmt.Errorf("write %q: %w", path, werr)
	}
	return path, nil
}
