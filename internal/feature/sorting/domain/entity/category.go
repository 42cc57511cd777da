// Package entity defines the domain models for the sorting feature.
package entity

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// UnknownClass is recorded when no usable prediction exists.
	UnknownClass = "unknown"
	// UnrecognizedClassID marks a class name outside the category list.
	// No label line is written for it.
	UnrecognizedClassID = -1
)

// DefaultCategories is the category order the bundled model was trained with.
var DefaultCategories = Categories{"organic", "recyclable", "general"}

// Categories is the ordered list of waste categories. The position of a name
// is its class id and must match the model's class index order.
type Categories []string

// NewCategories normalizes and validates an ordered category list.
func NewCategories(names []string) (Categories, error) {
	if len(names) == 0 {
		return nil, errors.New("category list is empty")
	}
	out := make(Categories, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = normalizeClass(n)
		if n == "" {
			return nil, errors.New("category list contains an empty name")
		}
		if n == UnknownClass {
			return nil, fmt.Errorf("%q is reserved and cannot be a category", UnknownClass)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate category %q", n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// Name returns the category name for a class id.
func (c Categories) Name(id int) (string, bool) {
	if id < 0 || id >= len(c) {
		return "", false
	}
	return c[id], true
}

// ID maps a free-text class name to its class id, ignoring case and
// surrounding whitespace. Unrecognized names map to UnrecognizedClassID.
func (c Categories) ID(name string) int {
	name = normalizeClass(name)
	for i, n := range c {
		if n == name {
			return i
		}
	}
	return UnrecognizedClassID
}

// ValidateCardinality checks that a model emitting n classes lines up with
// the category list.
func (c Categories) ValidateCardinality(n int) error {
	if n != len(c) {
		return fmt.Errorf("model emits %d classes but %d categories are configured (%s)",
			n, len(c), strings.Join(c, ","))
	}
	return nil
}

// NormalizeClass trims and lowercases a user-supplied class name.
func NormalizeClass(name string) string {
	return normalizeClass(name)
}

func normalizeClass(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
