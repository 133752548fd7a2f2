package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Binary and lock files excluded from the excerpt.
var excludedExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".pdf": true, ".zip": true, ".ico": true, ".woff": true,
	".woff2": true, ".so": true, ".dylib": true, ".exe": true,
}

var excludedFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"Cargo.lock":        true,
	"go.sum":            true,
}

var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// per-file cap keeps one huge file from consuming the whole excerpt.
const maxFileBytes = 64 << 10

// buildExcerpt flattens the tree at root into a single annotated text
// blob, capped at maxBytes. The walk order is lexical and the exclusion
// rules are static, so an unchanged tree always produces an identical
// excerpt and repeated analysis is reproducible.
func buildExcerpt(root string, maxBytes int) (string, error) {
	var sb strings.Builder

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if sb.Len() >= maxBytes {
			return filepath.SkipAll
		}
		if excludedFiles[d.Name()] || excludedExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if len(data) > maxFileBytes {
			data = data[:maxFileBytes]
		}
		if !utf8Text(data) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		remaining := maxBytes - sb.Len()
		chunk := fmt.Sprintf("\n# File: %s\n%s\n", filepath.ToSlash(rel), data)
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", root, err)
	}
	return sb.String(), nil
}

// utf8Text reports whether data looks like text (no NUL bytes in the
// first KB).
func utf8Text(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
