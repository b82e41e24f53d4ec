package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jormeli/slangload/pkg/imports"
	"github.com/jormeli/slangload/pkg/transform"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	jsExt      = ".js"
	defaultExt = ".txt"
)

// ErrNotSlangModule is returned for arguments that do not name a .slang file.
var ErrNotSlangModule = errors.New("not a Slang module id")

// rawExt maps lower-cased target names to the extension of raw output.
var rawExt = map[string]string{
	"glsl":      ".glsl",
	"hlsl":      ".hlsl",
	"spirv_asm": ".spvasm",
	"cpp":       ".cpp",
	"cuda":      ".cu",
	"metal":     ".metal",
	"wgsl":      ".wgsl",
}

// requestID applies a --target override to an argument lacking a query.
func requestID(arg, target string) (string, error) {
	req, ok := transform.Match(arg)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotSlangModule, arg)
	}

	if req.Target == "" && target != "" {
		return req.Path + "?" + target, nil
	}

	return arg, nil
}

// artifactName is the output file name for out: post.glsl.js, or post.glsl
// in raw mode.
func artifactName(out *transform.Output, raw bool) string {
	base := strings.TrimSuffix(filepath.Base(out.Entry), filepath.Ext(out.Entry))
	if !strings.EqualFold(filepath.Ext(out.Entry), imports.SourceExt) {
		base = filepath.Base(out.Entry)
	}

	if !raw {
		return base + "." + out.Target + jsExt
	}

	ext, ok := rawExt[out.Target]
	if !ok {
		ext = defaultExt
	}

	return base + ext
}

// payload returns the bytes written for out.
func payload(out *transform.Output, raw bool) string {
	if raw {
		return out.Code
	}

	return out.Module
}

// writeArtifact writes out under dir and returns the file path.
func writeArtifact(dir string, out *transform.Output, raw bool) (string, error) {
	mkErr := os.MkdirAll(dir, dirPerm)
	if mkErr != nil {
		return "", fmt.Errorf("create output directory: %w", mkErr)
	}

	path := filepath.Join(dir, artifactName(out, raw))

	writeErr := os.WriteFile(path, []byte(payload(out, raw)), filePerm)
	if writeErr != nil {
		return "", fmt.Errorf("write %s: %w", path, writeErr)
	}

	return path, nil
}
