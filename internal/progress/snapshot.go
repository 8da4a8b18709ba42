// Package progress models the progress of one index build: the snapshots a
// build emits, the percentage/ETA arithmetic behind them, and the bounded
// queue that carries them to the client.
package progress

import "time"

// Status is the coarse state of a build job.
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusDownloading  Status = "Downloading"
	StatusExtracting   Status = "Extracting"
	StatusCloning      Status = "Cloning"
	StatusIndexing     Status = "Indexing"
	StatusCompleted    Status = "Completed"
	StatusFailed       Status = "Failed"
)

// Terminal reports whether no snapshot may follow one with this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase is the fine-grained step reported as currentPhase.
type Phase string

const (
	PhaseQueued        Phase = "queued"
	PhaseResolving     Phase = "resolving"
	PhaseConnecting    Phase = "connecting"
	PhaseTransferring  Phase = "transferring"
	PhaseDownloaded    Phase = "downloaded"
	PhaseExtracting    Phase = "extracting"
	PhaseCloning       Phase = "cloning"
	PhaseAcquired      Phase = "acquired"
	PhaseEmbeddingInit Phase = "embedding_init"
	PhaseEmbeddingDone Phase = "embedding_ready"
	PhaseIndexing      Phase = "indexing"
	PhaseCompleted     Phase = "completed"
)

// Fixed checkpoints of the acquisition budget (0-40%) and the indexing span.
const (
	PctStart          = 0.0
	PctConnect        = 5.0
	PctTransfer       = 10.0
	PctPayload        = 20.0
	PctAcquired       = 30.0
	PctEmbeddingInit  = 35.0
	PctEmbeddingReady = 40.0

	PctIndexingBase = 40.0
	PctIndexingSpan = 60.0
	PctDone         = 100.0
)

// Stats summarizes a completed build.
type Stats struct {
	TotalFiles    int   `json:"totalFiles"`
	UpdatedChunks int   `json:"updatedChunks"`
	DurationMs    int64 `json:"durationMs"`
}

// Snapshot is one point-in-time record of a build. It is a value: callers
// may keep it after the build moves on.
type Snapshot struct {
	IndexID             string     `json:"indexId"`
	TotalFiles          int        `json:"totalFiles"`
	ProcessedFiles      int        `json:"processedFiles"`
	UpdatedChunks       int        `json:"updatedChunks"`
	ProgressPercentage  float64    `json:"progressPercentage"`
	Status              Status     `json:"status"`
	StatusMsg           string     `json:"statusMsg"`
	CurrentFile         string     `json:"currentFile,omitempty"`
	StartTime           *time.Time `json:"startTime,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
	ProcessingRate      *float64   `json:"processingRate,omitempty"`
	CurrentPhase        Phase      `json:"currentPhase"`
	IndexStats          *Stats     `json:"indexStats,omitempty"`
}

// IndexingPercentage maps indexer progress onto the 40-100% span.
func IndexingPercentage(total, processed int) float64 {
	if total <= 0 {
		return PctIndexingBase
	}
	if processed > total {
		processed = total
	}
	if processed < 0 {
		processed = 0
	}
	return PctIndexingBase + float64(processed)/float64(total)*PctIndexingSpan
}

// Rate returns files per second, or 0 when no time has passed.
func Rate(processed int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 || processed <= 0 {
		return 0
	}
	return float64(processed) / secs
}

// EstimateCompletion returns now + remaining/rate. ok is false when the
// rate is not positive or no work remains.
func EstimateCompletion(now time.Time, total, processed int, rate float64) (time.Time, bool) {
	if rate <= 0 || processed >= total {
		return time.Time{}, false
	}
	remaining := float64(total - processed)
	return now.Add(time.Duration(remaining / rate * float64(time.Second))), true
}
