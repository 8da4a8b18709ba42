package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the lowest open file limit that does not warn.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft open file limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	r := CheckResult{Name: "file_descriptors"}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("failed to read limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		r.Status = StatusWarn
		r.Details = "Run 'ulimit -n 10240' to raise the limit"
		return r
	}
	r.Status = StatusPass
	return r
}
