package transform

import "strings"

const (
	artifactPrefix = "export default `"
	artifactSuffix = "`;\n"
)

var templateEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"`", "\\`",
	"${", "\\${",
)

// WrapModule renders generated target code as a JavaScript module whose
// default export is the code string.
func WrapModule(code string) string {
	return artifactPrefix + templateEscaper.Replace(code) + artifactSuffix
}
