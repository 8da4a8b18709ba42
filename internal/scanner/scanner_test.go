package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScan_SortedRelativePaths(t *testing.T) {
	// Given: a small tree
	root := writeTree(t, map[string]string{
		"src/main.rs":  "fn main() {}",
		"src/admin.rs": "fn admin() {}",
		"README.md":    "# demo",
		"go/x.go":      "package x",
	})

	// When: scanning it
	files, err := Scan(context.Background(), Options{Root: root})

	// Then: every file comes back in path order with its language
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "go/x.go", "src/admin.rs", "src/main.rs"}, paths(files))
	assert.Equal(t, "markdown", files[0].Language)
	assert.Equal(t, "rust", files[3].Language)
	assert.Equal(t, filepath.Join(root, "src", "main.rs"), files[3].AbsPath)
	assert.Equal(t, int64(len("fn main() {}")), files[3].Size)
}

func TestScan_ExcludePrunesDirectories(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js":                   "x",
		"node_modules/lib/index.js": "x",
		"web/node_modules/a.js":     "x",
		"dist/app.min.js":           "x",
		"web/app.min.js":            "x",
		"web/app.js":                "x",
	})

	files, err := Scan(context.Background(), Options{
		Root:    root,
		Exclude: []string{"**/node_modules/**", "**/*.min.js", "dist/"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"main.js", "web/app.js"}, paths(files))
}

func TestScan_IncludeKeepsOnlyMatches(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.go":      "package a",
		"src/b.py":      "x = 1",
		"cmd/c.go":      "package main",
		"docs/guide.md": "# guide",
	})

	files, err := Scan(context.Background(), Options{Root: root, Include: []string{"src/**"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go", "src/b.py"}, paths(files))

	files, err = Scan(context.Background(), Options{Root: root, Include: []string{"*.go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd/c.go", "src/a.go"}, paths(files))
}

func TestScan_RespectsGitignore(t *testing.T) {
	// Given: a tree with root and nested .gitignore files
	root := writeTree(t, map[string]string{
		".gitignore":         "*.log\nbuild/\n",
		"app.go":             "package app",
		"debug.log":          "noise",
		"build/out.go":       "package out",
		"pkg/.gitignore":     "secret_test.go\n",
		"pkg/a.go":           "package pkg",
		"pkg/secret_test.go": "package pkg",
	})

	// When: scanning with and without gitignore handling
	files, err := Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	all, err := Scan(context.Background(), Options{Root: root, IgnoreGitignore: true})
	require.NoError(t, err)

	// Then: ignored paths only show up when gitignore is switched off
	assert.Equal(t, []string{".gitignore", "app.go", "pkg/.gitignore", "pkg/a.go"}, paths(files))
	assert.Contains(t, paths(all), "debug.log")
	assert.Contains(t, paths(all), "build/out.go")
	assert.Contains(t, paths(all), "pkg/secret_test.go")
}

func TestScan_SkipsGitDirSensitiveBinaryAndLargeFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		".git/config":      "[core]",
		".env":             "TOKEN=x",
		"server.pem":       "-----BEGIN",
		"logo.png":         "\x89PNG\x00\x00",
		"big.txt":          strings.Repeat("a", 2048),
		"small.txt":        "ok",
		"credentials.json": "{}",
	})

	files, err := Scan(context.Background(), Options{Root: root, MaxFileSize: 1024})

	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, paths(files))
}

func TestScan_NegativeMaxFileSizeDisablesLimit(t *testing.T) {
	root := writeTree(t, map[string]string{"big.txt": strings.Repeat("a", 4096)})

	files, err := Scan(context.Background(), Options{Root: root, MaxFileSize: -1})

	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestScan_LanguageFilter(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package a",
		"b.py": "x = 1",
		"c.md": "# c",
	})

	files, err := Scan(context.Background(), Options{Root: root, Language: "python"})

	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, paths(files))
}

func TestScan_GeneratedFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"gen.go":  "// Code generated by stringer. DO NOT EDIT.\npackage x",
		"hand.go": "package x",
	})

	files, err := Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, files[0].Generated)
	assert.False(t, files[1].Generated)

	files, err = Scan(context.Background(), Options{Root: root, SkipGenerated: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"hand.go"}, paths(files))
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope")})

	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeSourceNotFound, rerrors.GetCode(err))
}

func TestScan_RootIsFile(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "package a"})

	_, err := Scan(context.Background(), Options{Root: filepath.Join(root, "a.go")})

	assert.Equal(t, rerrors.ErrCodeSourceNotFound, rerrors.GetCode(err))
}

func TestScan_CancelledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "package a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, Options{Root: root})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/lib.rs", "rust"},
		{"web/App.TSX", "typescript"},
		{"scripts/run.sh", "shell"},
		{"Dockerfile", "dockerfile"},
		{"build/Makefile", "makefile"},
		{`win\path\x.py`, "python"},
		{"LICENSE", ""},
		{"archive.tar.gz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestLanguages_SortedAndUnique(t *testing.T) {
	langs := Languages()

	assert.True(t, len(langs) > 10)
	assert.IsIncreasing(t, langs)
	assert.Contains(t, langs, "go")
}

func TestValidatePatterns(t *testing.T) {
	assert.NoError(t, ValidatePatterns([]string{"**/*.go", "src/", "!vendor/**", "a?c"}))
	assert.Error(t, ValidatePatterns([]string{"src/[a-"}))
	assert.Error(t, ValidatePatterns([]string{"  "}))
	assert.NoError(t, ValidatePatterns(nil))
}
