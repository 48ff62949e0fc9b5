// Package objectpath owns the object storage naming convention for images.
package objectpath

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/security"
)

// Purpose is the folder an image belongs to.
type Purpose string

const (
	ProductMain      Purpose = "products/main"
	ProductHover     Purpose = "products/hover"
	HomepageHero     Purpose = "homepage/hero"
	HomepageCarousel Purpose = "homepage/carousel"
)

var validPurposes = []Purpose{ProductMain, ProductHover, HomepageHero, HomepageCarousel}

func (p Purpose) IsValid() bool {
	for _, candidate := range validPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

var (
	objectName = regexp.MustCompile(`^[0-9]{13}_[0-9a-f]{6}(\.[a-z0-9]{1,5})?$`)
	extension  = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// Build returns "<purpose>/<unix millis>_<6 hex><ext>" for filename.
func Build(purpose Purpose, filename string, now time.Time) (string, error) {
	if !purpose.IsValid() {
		return "", fmt.Errorf("unknown image purpose %q", purpose)
	}
	suffix, err := security.RandomHex(3)
	if err != nil {
		return "", fmt.Errorf("random suffix: %w", err)
	}
	ext := strings.ToLower(path.Ext(path.Base(strings.TrimSpace(filename))))
	if !extension.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%s/%013d_%s%s", purpose, now.UnixMilli(), suffix, ext), nil
}

// Validate checks that ref, either a bare object path or a URL whose path
// contains one, names an object directly under purpose.
func Validate(purpose Purpose, ref string) error {
	if !purpose.IsValid() {
		return fmt.Errorf("unknown image purpose %q", purpose)
	}
	objectPath, err := extractPath(ref)
	if err != nil {
		return err
	}
	prefix := string(purpose) + "/"
	idx := strings.Index(objectPath, prefix)
	if idx < 0 || (idx > 0 && objectPath[idx-1] != '/') {
		return fmt.Errorf("image %q is not stored under %s", ref, purpose)
	}
	name := objectPath[idx+len(prefix):]
	if !objectName.MatchString(name) {
		return fmt.Errorf("image %q does not follow the naming convention", ref)
	}
	return nil
}

func extractPath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("image reference is empty")
	}
	if !strings.Contains(ref, "://") {
		return strings.TrimPrefix(ref, "/"), nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w", err)
	}
	unescaped, err := url.PathUnescape(parsed.EscapedPath())
	if err != nil {
		return "", fmt.Errorf("invalid image url: %w", err)
	}
	return strings.TrimPrefix(unescaped, "/"), nil
}
