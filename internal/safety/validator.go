package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrRootTarget     = errors.New("sweep root cannot be removed")
	ErrOutsideAllowed = errors.New("outside sweep root")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator enforces the safety contract for all delete operations
type Validator struct {
	Root           string
	ProtectedPaths []string

	// resolvedRoot is Root with symlinks evaluated, used for escape checks
	resolvedRoot string
}

// NewValidator creates a validator for one sweep root plus optional protected paths
func NewValidator(root string, extraProtected []string) *Validator {
	v := &Validator{
		Root:           normalizeRoot(root),
		ProtectedPaths: defaultProtected(normalizeRoots(extraProtected)),
	}
	v.resolvedRoot = v.Root
	if resolved, err := filepath.EvalSymlinks(v.Root); err == nil {
		v.resolvedRoot = filepath.Clean(resolved)
	}
	return v
}

// ValidateDeleteTarget is the single-source-of-truth for delete authorization
// Returns typed error on safety violation
func (v *Validator) ValidateDeleteTarget(path string) error {
	// 1. Normalize path to absolute, cleaned form
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	// 2. The root is never a target, even when it ends up empty
	if p == v.Root {
		return ErrRootTarget
	}

	// 3. Block protected paths
	if IsProtectedPath(p, v.ProtectedPaths) {
		return ErrProtectedPath
	}

	// 4. Ensure strictly below the root
	if !IsWithinRoot(p, v.Root) {
		return ErrOutsideAllowed
	}

	// 5. Detect symlink escape
	escaped, err := DetectSymlinkEscape(p, v.resolvedRoot)
	if err != nil {
		// Vanished targets are left for the delete call to report
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if escaped {
		return ErrSymlinkEscape
	}

	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// IsWithinRoot checks if path is the root or below it
func IsWithinRoot(path, root string) bool {
	if filepath.Clean(root) == string(os.PathSeparator) {
		return filepath.IsAbs(path)
	}
	return hasPathPrefix(filepath.Clean(path), root)
}

// DetectSymlinkEscape resolves symlinks and checks if the resolved path leaves the resolved root
func DetectSymlinkEscape(cleanAbs string, resolvedRoot string) (bool, error) {
	resolved, err := filepath.EvalSymlinks(cleanAbs)
	if err != nil {
		return false, err
	}
	resolvedAbs, err := filepath.Abs(resolved)
	if err != nil {
		return false, err
	}
	return !IsWithinRoot(filepath.Clean(resolvedAbs), resolvedRoot), nil
}

// IsProtectedPath checks if path matches a protected path or lives below one
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		if hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path has the given prefix
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == prefix
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

func normalizeRoot(root string) string {
	if p, err := NormalizePath(root); err == nil {
		return p
	}
	return filepath.Clean(root)
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		p, err := NormalizePath(r)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{"/"}
	return append(base, extra...)
}

// IsViolation reports whether err is one of the safety contract errors, as
// opposed to an I/O failure while checking
func IsViolation(err error) bool {
	return errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrProtectedPath) ||
		errors.Is(err, ErrRootTarget) ||
		errors.Is(err, ErrOutsideAllowed) ||
		errors.Is(err, ErrSymlinkEscape)
}
