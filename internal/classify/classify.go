// Package classify infers a repository's technology profile from its
// files. Classification is purely local and deterministic: the same tree
// always yields the same Classification, and an empty or unreadable tree
// yields an explicit unknown profile rather than an error so downstream
// stages can proceed with conservative defaults.
package classify

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joescharf/reviewd/internal/models"
)

// Directories never inspected.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// extLanguage maps file extensions to language names.
var extLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".cs":    "csharp",
	".php":   "php",
	".rs":    "rust",
	".swift": "swift",
	".scala": "scala",
	".ex":    "elixir",
	".exs":   "elixir",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".sh":    "shell",
	".tf":    "terraform",
}

// manifestFrameworks maps manifest filenames to framework markers
// searched for in the file content.
var manifestFrameworks = map[string]map[string]string{
	"package.json": {
		`"react"`:         "react",
		`"next"`:          "nextjs",
		`"express"`:       "express",
		`"vue"`:           "vue",
		`"@angular/core"`: "angular",
	},
	"requirements.txt": {
		"fastapi": "fastapi",
		"django":  "django",
		"flask":   "flask",
	},
	"pyproject.toml": {
		"fastapi": "fastapi",
		"django":  "django",
		"flask":   "flask",
	},
	"go.mod": {
		"github.com/gin-gonic/gin": "gin",
		"github.com/labstack/echo": "echo",
		"github.com/gofiber/fiber": "fiber",
	},
	"Gemfile": {
		"rails": "rails",
	},
	"pom.xml": {
		"springframework": "spring",
	},
	"build.gradle": {
		"springframework": "spring",
	},
	"composer.json": {
		"laravel": "laravel",
	},
}

// manifest content larger than this is not worth sniffing.
const maxManifestBytes = 1 << 20

// Classify walks the tree at root and returns its technology profile.
func Classify(root string) models.Classification {
	langCounts := map[string]int{}
	frameworks := map[string]bool{}
	fileCount := 0

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries degrade, never fail
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		fileCount++

		if lang, ok := extLanguage[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			langCounts[lang]++
		}
		if markers, ok := manifestFrameworks[d.Name()]; ok {
			for _, fw := range sniffManifest(path, markers) {
				frameworks[fw] = true
			}
		}
		return nil
	})

	return models.Classification{
		Languages:  primaryLanguages(langCounts),
		Frameworks: sortedKeys(frameworks),
		Size:       sizeClass(fileCount),
	}
}

// sniffManifest returns the frameworks whose markers appear in the file.
func sniffManifest(path string, markers map[string]string) []string {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxManifestBytes {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	content := string(data)

	var found []string
	for marker, fw := range markers {
		if strings.Contains(content, marker) {
			found = append(found, fw)
		}
	}
	return found
}

// primaryLanguages returns languages ordered by file count descending,
// name ascending on ties. Languages below a tenth of the leader are
// considered incidental and dropped.
func primaryLanguages(counts map[string]int) []string {
	if len(counts) == 0 {
		return nil
	}

	type langCount struct {
		name  string
		count int
	}
	ranked := make([]langCount, 0, len(counts))
	max := 0
	for name, count := range counts {
		ranked = append(ranked, langCount{name, count})
		if count > max {
			max = count
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})

	var langs []string
	for _, lc := range ranked {
		if lc.count*10 < max {
			break
		}
		langs = append(langs, lc.name)
	}
	return langs
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sizeClass(files int) models.SizeClass {
	switch {
	case files < 100:
		return models.SizeSmall
	case files < 1000:
		return models.SizeMedium
	default:
		return models.SizeLarge
	}
}
