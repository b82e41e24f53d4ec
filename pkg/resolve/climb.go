package resolve

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jormeli/slangload/pkg/imports"
)

// ErrUnresolvableImport is returned when no file matches an import reference
// at any ancestor directory, or when a module file cannot be read.
var ErrUnresolvableImport = errors.New("could not resolve import")

// Climb resolves a normalized import reference to an absolute file path.
// The first candidate is root/ref.slang; each miss moves the candidate's file
// name one directory up until it is found or the candidate stops changing.
func Climb(fsys FileSystem, root, ref string) (string, error) {
	candidate, err := filepath.Abs(filepath.Join(root, ref+imports.SourceExt))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnresolvableImport, ref, err)
	}

	for !fsys.Exists(candidate) {
		parent := filepath.Join(filepath.Dir(filepath.Dir(candidate)), filepath.Base(candidate))
		if parent == candidate {
			return "", fmt.Errorf("%w: %s", ErrUnresolvableImport, ref)
		}

		candidate = parent
	}

	return candidate, nil
}
