// Package exclude decides which paths a sweep must never enter or remove.
package exclude

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Mode selects how excluded names are compared against a path.
type Mode string

const (
	// ModeSubstring excludes a path when an excluded name occurs anywhere in
	// the path string, so "my-node_modules-backup" and "distillery" match too.
	ModeSubstring Mode = "substring"
	// ModeSegment excludes a path only when one of its segments equals an
	// excluded name.
	ModeSegment Mode = "segment"
)

// DefaultNames are the dependency and build output folders skipped when no
// configuration says otherwise.
var DefaultNames = []string{"node_modules", ".next", "dist", "build"}

var (
	ErrUnknownMode = errors.New("unknown match mode")
	ErrEmptyName   = errors.New("exclude name cannot be empty")
)

// ParseMode converts a config or flag value to a Mode. Empty means substring.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSubstring:
		return ModeSubstring, nil
	case ModeSegment:
		return ModeSegment, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownMode, s, ModeSubstring, ModeSegment)
	}
}

// Filter reports whether a path is protected from traversal and deletion.
// It is pure and safe for concurrent use once built.
type Filter struct {
	names []string
	set   map[string]struct{}
	mode  Mode
}

// New builds a Filter. Duplicate names are dropped, order is otherwise kept.
func New(names []string, mode Mode) (*Filter, error) {
	if mode == "" {
		mode = ModeSubstring
	}
	if mode != ModeSubstring && mode != ModeSegment {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	f := &Filter{
		names: make([]string, 0, len(names)),
		set:   make(map[string]struct{}, len(names)),
		mode:  mode,
	}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, ErrEmptyName
		}
		if _, dup := f.set[n]; dup {
			continue
		}
		f.set[n] = struct{}{}
		f.names = append(f.names, n)
	}
	return f, nil
}

// Default returns the substring filter over DefaultNames.
func Default() *Filter {
	f, _ := New(DefaultNames, ModeSubstring)
	return f
}

// Match returns true if path must be skipped.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return false
	}
	if f.mode == ModeSegment {
		return f.matchSegment(path)
	}
	for _, n := range f.names {
		if strings.Contains(path, n) {
			return true
		}
	}
	return false
}

func (f *Filter) matchSegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if _, ok := f.set[seg]; ok {
			return true
		}
	}
	return false
}

// Names returns a copy of the excluded names.
func (f *Filter) Names() []string {
	return append([]string(nil), f.names...)
}

// Mode returns the comparison mode.
func (f *Filter) Mode() Mode {
	return f.mode
}
