package scanner

import (
	"path"
	"sort"
	"strings"
)

// languageByExt maps file extensions, and a few well-known file names, to
// the language tag stored on every chunk.
var languageByExt = map[string]string{
	".go": "go",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py":  "python",
	".pyi": "python",

	".rs": "rust",

	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".scala": "scala",

	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",
	".hpp": "cpp",
	".cs":  "csharp",

	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".lua":   "lua",
	".ex":    "elixir",
	".exs":   "elixir",
	".erl":   "erlang",
	".hs":    "haskell",
	".sql":   "sql",

	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",

	".html": "html",
	".css":  "css",
	".scss": "scss",
	".vue":  "vue",

	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".proto": "protobuf",

	".md":       "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",

	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"GNUmakefile": "makefile",
}

// DetectLanguage returns the language of a file from its name, or "" when
// the extension is unknown.
func DetectLanguage(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if lang, ok := languageByExt[base]; ok {
		return lang
	}
	ext := path.Ext(base)
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	if lang, ok := languageByExt[strings.ToLower(ext)]; ok {
		return lang
	}
	return ""
}

// Languages returns the sorted set of language tags the scanner knows.
func Languages() []string {
	seen := make(map[string]struct{}, len(languageByExt))
	out := make([]string, 0, len(languageByExt))
	for _, lang := range languageByExt {
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
