package progress

import (
	"sync"
	"time"
)

// Tracker owns the mutable progress state of a single build and produces
// snapshots from it. Once a terminal snapshot has been produced every
// further update is refused.
type Tracker struct {
	mu sync.Mutex

	indexID string
	now     func() time.Time
	start   time.Time

	status      Status
	phase       Phase
	msg         string
	pct         float64
	total       int
	processed   int
	updated     int
	currentFile string
	rate        *float64
	eta         *time.Time
	stats       *Stats
}

// NewTracker starts the build clock. A nil now uses time.Now, whose
// readings carry the monotonic clock used for elapsed time.
func NewTracker(indexID string, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		indexID: indexID,
		now:     now,
		start:   now(),
		status:  StatusInitializing,
		phase:   PhaseQueued,
		msg:     "Preparing",
	}
}

// Milestone records a fixed acquisition checkpoint.
func (t *Tracker) Milestone(status Status, phase Phase, pct float64, msg string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return t.snapshotLocked(), false
	}

	t.status = status
	t.phase = phase
	t.pct = pct
	t.msg = msg
	t.currentFile = ""
	return t.snapshotLocked(), true
}

// Indexing records one indexer callback and recomputes percentage, rate
// and ETA.
func (t *Tracker) Indexing(total, processed, updated int, currentFile string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return t.snapshotLocked(), false
	}

	now := t.now()
	rate := Rate(processed, now.Sub(t.start))

	t.status = StatusIndexing
	t.phase = PhaseIndexing
	t.total = total
	t.processed = processed
	t.updated = updated
	t.currentFile = currentFile
	t.pct = IndexingPercentage(total, processed)
	t.msg = "Indexing"
	t.rate = &rate
	t.eta = nil
	if at, ok := EstimateCompletion(now, total, processed, rate); ok {
		t.eta = &at
	}
	return t.snapshotLocked(), true
}

// Complete produces the terminal success snapshot: 100%, no current file,
// no ETA, with build stats attached.
func (t *Tracker) Complete(total, updated int) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return t.snapshotLocked(), false
	}

	t.status = StatusCompleted
	t.phase = PhaseCompleted
	t.pct = PctDone
	t.msg = "Index completed"
	t.total = total
	t.processed = total
	t.updated = updated
	t.currentFile = ""
	t.eta = nil
	t.stats = &Stats{
		TotalFiles:    total,
		UpdatedChunks: updated,
		DurationMs:    t.now().Sub(t.start).Milliseconds(),
	}
	return t.snapshotLocked(), true
}

// Fail produces the terminal failure snapshot. The percentage reached so
// far is kept.
func (t *Tracker) Fail(msg string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return t.snapshotLocked(), false
	}

	if msg == "" {
		msg = "Index build failed"
	}
	t.status = StatusFailed
	t.msg = msg
	t.currentFile = ""
	t.eta = nil
	return t.snapshotLocked(), true
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Status returns the current coarse status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Phase returns the last phase reached. A failed build keeps the phase it
// failed in.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Tracker) snapshotLocked() Snapshot {
	start := t.start
	s := Snapshot{
		IndexID:            t.indexID,
		TotalFiles:         t.total,
		ProcessedFiles:     t.processed,
		UpdatedChunks:      t.updated,
		ProgressPercentage: t.pct,
		Status:             t.status,
		StatusMsg:          t.msg,
		CurrentFile:        t.currentFile,
		StartTime:          &start,
		CurrentPhase:       t.phase,
	}
	if t.rate != nil {
		r := *t.rate
		s.ProcessingRate = &r
	}
	if t.eta != nil {
		e := *t.eta
		s.EstimatedCompletion = &e
	}
	if t.stats != nil {
		st := *t.stats
		s.IndexStats = &st
	}
	return s
}
