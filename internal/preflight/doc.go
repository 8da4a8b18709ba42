// Package preflight checks that the machine can build indexes before any
// work starts: the index and temp directories are writable and have free
// space, the git backend is usable, the embedder answers, and the process
// may open enough files.
//
//	c := preflight.New(cfg)
//	results := c.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
