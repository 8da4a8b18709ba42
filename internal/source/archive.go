package source

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
)

// download GETs url and buffers the whole body, refusing bodies larger than
// limit bytes.
func download(ctx context.Context, client *http.Client, url string, limit int64, observe Observer) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionDownload, fmt.Sprintf("invalid archive URL: %v", err), err)
	}

	observe.emit(StepConnect)
	resp, err := client.Do(req)
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionDownload, fmt.Sprintf("download failed: %v", err), err).
			WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionDownload,
			fmt.Sprintf("download failed: unexpected status %s", resp.Status), nil).
			WithDetail("url", url)
	}

	observe.emit(StepTransfer)
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionDownload, fmt.Sprintf("download interrupted: %v", err), err).
			WithDetail("url", url)
	}
	if int64(len(data)) > limit {
		return nil, rerrors.AcquisitionError(rerrors.AcquisitionDownload,
			fmt.Sprintf("archive exceeds %d bytes", limit), nil).
			WithDetail("url", url)
	}
	observe.emit(StepPayload)

	return data, nil
}

// extractZip unpacks data into dir entry by entry, recreating the directory
// structure. Entries that would escape dir fail the whole extraction.
func extractZip(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return rerrors.AcquisitionError(rerrors.AcquisitionArchive, fmt.Sprintf("invalid zip archive: %v", err), err)
	}

	for _, f := range zr.File {
		rel, ok := sanitizeArchivePath(f.Name)
		if !ok {
			return rerrors.AcquisitionError(rerrors.AcquisitionArchive,
				fmt.Sprintf("unsafe path in archive: %q", f.Name), nil)
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dir, rel)

		mode := f.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(target, 0o755); err != nil {
				return rerrors.AcquisitionError(rerrors.AcquisitionArchive, fmt.Sprintf("create %s: %v", rel, err), err)
			}
		case mode&os.ModeSymlink != 0:
			// Links could point outside the tree; the indexer never needs them.
			continue
		default:
			if err := writeZipEntry(f, target); err != nil {
				return rerrors.AcquisitionError(rerrors.AcquisitionArchive, fmt.Sprintf("extract %s: %v", rel, err), err)
			}
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// sanitizeArchivePath normalizes an entry name to a relative slash-free
// path. ok is false for absolute names and names containing "..". The
// archive root itself maps to "".
func sanitizeArchivePath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	if name == "" {
		return "", true
	}
	if strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", true
	}
	return clean, true
}

// singleRoot returns dir/<name> when dir holds exactly one entry and it is
// a directory, which is how hosted forges package source archives.
func singleRoot(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}
