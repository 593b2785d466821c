package domain

import (
	"fmt"
	"strings"
)

// DefaultCategories is the category list the ledger ships with.
var DefaultCategories = []string{
	"Transportation",
	"Meals",
	"Entertainment",
	"Office",
	"Office Supply",
	"ETC",
}

// CategoryValidator validates record categories against the configured list.
type CategoryValidator struct {
	canonical map[string]string // normalized name -> configured spelling
	names     []string
}

// NewCategoryValidator builds a validator. An empty list falls back to
// DefaultCategories.
func NewCategoryValidator(names []string) *CategoryValidator {
	if len(names) == 0 {
		names = DefaultCategories
	}

	v := &CategoryValidator{
		canonical: make(map[string]string, len(names)),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := normalizeCategory(name)
		if _, dup := v.canonical[key]; dup {
			continue
		}
		v.canonical[key] = name
		v.names = append(v.names, name)
	}
	return v
}

// Names returns the configured categories in configuration order.
func (v *CategoryValidator) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Canonical returns the configured spelling for category.
// Returns an error if the category is not configured.
func (v *CategoryValidator) Canonical(category string) (string, error) {
	name, ok := v.canonical[normalizeCategory(category)]
	if !ok {
		return "", fmt.Errorf("invalid category: %q (valid: %s)", category, strings.Join(v.names, ", "))
	}
	return name, nil
}

// normalizeCategory converts to uppercase, trims and collapses inner
// whitespace for case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
