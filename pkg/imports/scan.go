// Package imports extracts module import declarations from Slang source text.
package imports

import (
	"path/filepath"
	"regexp"
	"strings"
)

// SourceExt is the file extension of Slang source modules.
const SourceExt = ".slang"

const (
	moduleSeparator = "."
	tokenUnderscore = "_"
	tokenHyphen     = "-"
)

// importRE matches `import <path>;` where the path holds no quotes or semicolons.
var importRE = regexp.MustCompile(`\bimport\s+([^"';]+);`)

// Scan returns the normalized import references found in source, in source
// order. Duplicates are kept.
func Scan(source string) []string {
	matches := importRE.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return nil
	}

	refs := make([]string, 0, len(matches))

	for _, match := range matches {
		refs = append(refs, Normalize(match[1]))
	}

	return refs
}

// Normalize converts a raw import span into a filesystem-relative reference:
// dots become path separators and underscores become hyphens, then a
// trailing ".slang" is dropped. The dot rewrite runs first, so
// "noise.slang" names the module noise/slang.
func Normalize(raw string) string {
	ref := strings.TrimSpace(raw)
	ref = strings.ReplaceAll(ref, moduleSeparator, string(filepath.Separator))
	ref = strings.ReplaceAll(ref, tokenUnderscore, tokenHyphen)

	return strings.TrimSuffix(ref, SourceExt)
}
