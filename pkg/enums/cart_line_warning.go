package enums

import "fmt"

// CartLineWarning explains why a cart line differs from what the shopper asked for.
type CartLineWarning string

const (
	CartLineWarningClampedToStock    CartLineWarning = "clamped_to_stock"
	CartLineWarningNotAvailable      CartLineWarning = "not_available"
	CartLineWarningInsufficientStock CartLineWarning = "insufficient_stock"
)

var validCartLineWarnings = []CartLineWarning{
	CartLineWarningClampedToStock,
	CartLineWarningNotAvailable,
	CartLineWarningInsufficientStock,
}

// String implements fmt.Stringer.
func (c CartLineWarning) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c CartLineWarning) IsValid() bool {
	for _, candidate := range validCartLineWarnings {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartLineWarning converts raw input into a CartLineWarning.
func ParseCartLineWarning(value string) (CartLineWarning, error) {
	for _, candidate := range validCartLineWarnings {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart line warning %q", value)
}
