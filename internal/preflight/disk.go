package preflight

import (
	"fmt"
	"syscall"

	"github.com/Aman-CERP/repoindex/internal/ui"
)

// Minimum free space for the index and for clone/extract directories.
const (
	MinIndexDiskBytes = 100 * 1024 * 1024
	MinTempDiskBytes  = 512 * 1024 * 1024
)

// CheckDiskSpace checks the free space of the filesystem holding path.
func (c *Checker) CheckDiskSpace(name, path string, minBytes uint64, required bool) CheckResult {
	r := CheckResult{Name: name, Required: required, Details: path}

	free, err := freeBytes(path)
	if err != nil {
		r.Status = failOrWarn(required)
		r.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%s free (minimum: %s)", ui.FormatBytes(int64(free)), ui.FormatBytes(int64(minBytes)))
	if free < minBytes {
		r.Status = failOrWarn(required)
		return r
	}
	r.Status = StatusPass
	return r
}

func freeBytes(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
