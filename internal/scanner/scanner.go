// Package scanner discovers the files of a source tree that are worth
// indexing. It honors include and exclude globs, .gitignore rules, a size
// cap and a set of sensitive file names that are never read.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultMaxFileSize is used when Options.MaxFileSize is zero.
const DefaultMaxFileSize int64 = 1 << 20

// sniffLen is how much of a file is read to tell text from binary.
const sniffLen = 8000

// File is a file selected for indexing.
type File struct {
	Path      string // slash-separated, relative to the root
	AbsPath   string
	Size      int64
	ModTime   time.Time
	Language  string
	Generated bool
}

// Options configures a scan.
type Options struct {
	Root string

	// Include keeps only files matching at least one pattern (empty keeps
	// all). Exclude drops matching files and prunes matching directories.
	// Both use gitignore syntax relative to Root.
	Include []string
	Exclude []string

	// IgnoreGitignore disables .gitignore and .git/info/exclude handling.
	IgnoreGitignore bool

	// MaxFileSize in bytes. Zero means DefaultMaxFileSize, negative means
	// no limit.
	MaxFileSize int64

	// Language keeps only files detected as this language.
	Language string

	// SkipGenerated drops files carrying a generated-code marker.
	SkipGenerated bool
}

// Scan walks opts.Root and returns the selected files sorted by path.
func Scan(ctx context.Context, opts Options) ([]File, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, rerrors.IndexerError("failed to resolve scan root", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionFilesystem, "scan root is not accessible", err).
			WithDetail("path", root)
	}
	if !info.IsDir() {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionFilesystem, "scan root is not a directory", nil).
			WithDetail("path", root)
	}

	f, err := newFilter(root, opts)
	if err != nil {
		return nil, err
	}

	var files []File
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			slog.Debug("scan_entry_skipped", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")

		if d.IsDir() {
			if f.excludedDir(parts) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and devices are never followed.
			return nil
		}

		file, ok := f.accept(p, rel, parts, d)
		if ok {
			files = append(files, file)
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, rerrors.IndexerError("failed to scan source tree", walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

type filter struct {
	opts      Options
	maxSize   int64
	exclude   gitignore.Matcher
	include   gitignore.Matcher
	gitignore gitignore.Matcher
}

func newFilter(root string, opts Options) (*filter, error) {
	f := &filter{opts: opts, maxSize: opts.MaxFileSize}
	if f.maxSize == 0 {
		f.maxSize = DefaultMaxFileSize
	}

	f.exclude = gitignore.NewMatcher(parsePatterns(opts.Exclude))
	if len(opts.Include) > 0 {
		f.include = gitignore.NewMatcher(parsePatterns(opts.Include))
	}

	if !opts.IgnoreGitignore {
		ps, err := gitignore.ReadPatterns(osfs.New(root), nil)
		if err != nil {
			return nil, rerrors.IndexerError("failed to read .gitignore files", err)
		}
		f.gitignore = gitignore.NewMatcher(ps)
	}
	return f, nil
}

func parsePatterns(globs []string) []gitignore.Pattern {
	ps := make([]gitignore.Pattern, 0, len(globs))
	for _, g := range globs {
		g = strings.TrimSpace(filepath.ToSlash(g))
		if g == "" {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(strings.TrimPrefix(g, "./"), nil))
	}
	return ps
}

func (f *filter) excludedDir(parts []string) bool {
	if parts[len(parts)-1] == ".git" {
		return true
	}
	if f.exclude.Match(parts, true) {
		return true
	}
	return f.gitignore != nil && f.gitignore.Match(parts, true)
}

func (f *filter) accept(abs, rel string, parts []string, d fs.DirEntry) (File, bool) {
	name := parts[len(parts)-1]
	if isSensitive(name) {
		return File{}, false
	}
	if f.exclude.Match(parts, false) {
		return File{}, false
	}
	if f.include != nil && !f.include.Match(parts, false) {
		return File{}, false
	}
	if f.gitignore != nil && f.gitignore.Match(parts, false) {
		return File{}, false
	}

	lang := DetectLanguage(name)
	if f.opts.Language != "" && lang != f.opts.Language {
		return File{}, false
	}

	info, err := d.Info()
	if err != nil {
		return File{}, false
	}
	if f.maxSize > 0 && info.Size() > f.maxSize {
		slog.Debug("scan_file_too_large", slog.String("path", rel), slog.Int64("size", info.Size()))
		return File{}, false
	}

	head, err := readHead(abs)
	if err != nil || isBinary(head) {
		return File{}, false
	}
	generated := isGenerated(head)
	if generated && f.opts.SkipGenerated {
		return File{}, false
	}

	return File{
		Path:      rel,
		AbsPath:   abs,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Language:  lang,
		Generated: generated,
	}, true
}

func readHead(p string) ([]byte, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func isBinary(head []byte) bool {
	return bytes.IndexByte(head, 0) >= 0
}

var generatedMarkers = [][]byte{
	[]byte("Code generated"),
	[]byte("DO NOT EDIT"),
	[]byte("@generated"),
	[]byte("<auto-generated"),
}

func isGenerated(head []byte) bool {
	if len(head) > 1024 {
		head = head[:1024]
	}
	for _, m := range generatedMarkers {
		if bytes.Contains(head, m) {
			return true
		}
	}
	return false
}

// sensitivePatterns name files that may hold credentials. They are skipped
// whatever the include patterns say.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range sensitivePatterns {
		if ok, _ := path.Match(p, lower); ok {
			return true
		}
	}
	return false
}

// ValidatePatterns reports the first glob that cannot be compiled.
func ValidatePatterns(globs []string) error {
	for _, g := range globs {
		g = strings.TrimPrefix(strings.TrimSpace(g), "!")
		if g == "" {
			return errors.New("empty pattern")
		}
		for _, seg := range strings.Split(strings.Trim(g, "/"), "/") {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", g, err)
			}
		}
	}
	return nil
}
