package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// walkSourceFiles walks root and returns every supported source file,
// relative to root, in a stable path-sorted order. The build pipeline
// needs the full file list up front so it can sort before parsing;
// discovery order must not depend on filesystem iteration order.
func walkSourceFiles(root string) ([]string, error) {
	var rel []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isSupportedFile(path) {
			r, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			rel = append(rel, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(rel)
	return rel, nil
}

func shouldSkipDir(name string) bool {
	excludeDirs := []string{
		".git", "node_modules", "vendor", "venv", "__pycache__",
		".next", ".nuxt", "dist", "build", "out", "target",
		".cache", ".parcel-cache", "coverage", ".nyc_output",
		".pytest_cache", ".tox", ".venv", "env", "__mocks__",
		".idea", ".vscode",
	}
	for _, exclude := range excludeDirs {
		if name == exclude || strings.HasPrefix(name, exclude) {
			return true
		}
	}
	return false
}

func isSupportedFile(path string) bool {
	ext := filepath.Ext(path)
	supported := []string{
		".go",
		".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".mts", ".cts",
		".py", ".pyi", ".pyw",
	}
	found := false
	for _, s := range supported {
		if ext == s {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if isGeneratedFile(path) || isTestFixture(path) {
		return false
	}
	return true
}

func isGeneratedFile(path string) bool {
	suffixes := []string{".min.js", ".bundle.js", ".generated.ts", ".generated.js", ".pb.js", ".pb.ts", "_pb.js", "_pb.ts"}
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	dirs := []string{"/dist/", "/build/", "/out/", "/.next/", "/.nuxt/"}
	for _, d := range dirs {
		if strings.Contains(path, d) {
			return true
		}
	}
	return false
}

func isTestFixture(path string) bool {
	dirs := []string{"/__tests__/fixtures/", "/__mocks__/", "/test/fixtures/", "/tests/fixtures/", "/spec/fixtures/"}
	for _, d := range dirs {
		if strings.Contains(path, d) {
			return true
		}
	}
	return false
}
