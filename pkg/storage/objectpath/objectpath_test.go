package objectpath

import (
	"strings"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1767225600123)

	got, err := Build(ProductMain, "Summer Hat.JPG", now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(got, "products/main/1767225600123_") || !strings.HasSuffix(got, ".jpg") {
		t.Fatalf("unexpected path %q", got)
	}
	if err := Validate(ProductMain, got); err != nil {
		t.Fatalf("built path failed validation: %v", err)
	}

	other, err := Build(ProductMain, "Summer Hat.JPG", now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if other == got {
		t.Fatalf("expected random suffix to avoid collisions, got %q twice", got)
	}
}

func TestBuildDropsOddExtensions(t *testing.T) {
	t.Parallel()
	got, err := Build(HomepageHero, "banner.toolongext", time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(got, ".") {
		t.Fatalf("expected extension stripped, got %q", got)
	}
	if _, err := Build(Purpose("avatars"), "a.png", time.Now()); err == nil {
		t.Fatal("expected unknown purpose error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		purpose Purpose
		ref     string
		wantErr bool
	}{
		{"bare path", ProductHover, "products/hover/1700000000000_abc123.webp", false},
		{"url", ProductMain, "https://cdn.example.com/o/products%2Fmain%2F1700000000000_abc123.png?alt=media", false},
		{"wrong purpose", ProductMain, "products/hover/1700000000000_abc123.png", true},
		{"nested folder", HomepageCarousel, "homepage/carousel/x/1700000000000_abc123.png", true},
		{"bad name", HomepageHero, "homepage/hero/banner.png", true},
		{"prefix lookalike", ProductMain, "oldproducts/main/1700000000000_abc123.png", true},
		{"empty", ProductMain, " ", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.purpose, tc.ref)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.ref)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.ref, err)
			}
		})
	}
}
