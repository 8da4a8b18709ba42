package ui

import (
	"testing"
	"time"

	"github.com/Aman-CERP/repoindex/internal/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func newTestModel() *buildModel {
	m := newBuildModel("https://github.com/acme/app")
	m.styles = NoColorStyles()
	m.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	return m
}

func TestBuildModel_ShowsIndexingProgress(t *testing.T) {
	// Given: a model receiving an indexing snapshot
	m := newTestModel()
	rate := 12.5
	eta := time.Date(2026, 1, 1, 10, 2, 5, 0, time.UTC)

	// When: the snapshot arrives
	_, cmd := m.Update(snapshotMsg(progress.Snapshot{
		Status:              progress.StatusIndexing,
		CurrentPhase:        progress.PhaseIndexing,
		ProgressPercentage:  70,
		TotalFiles:          10,
		ProcessedFiles:      5,
		UpdatedChunks:       17,
		CurrentFile:         "internal/app/server.go",
		ProcessingRate:      &rate,
		EstimatedCompletion: &eta,
	}))

	// Then: counts, rate, ETA and the current file are in the view
	assert.Nil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "repoindex • https://github.com/acme/app")
	assert.Contains(t, view, "70%")
	assert.Contains(t, view, "5 / 10 files • 17 chunks updated")
	assert.Contains(t, view, "Rate: 12.5 files/s")
	assert.Contains(t, view, "ETA: 2m 5s")
	assert.Contains(t, view, "internal/app/server.go")
	assert.Contains(t, view, "● Fetch")
	assert.Equal(t, 1, m.rates.Count())
}

func TestBuildModel_FinishQuits(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		m := newTestModel()

		_, cmd := m.Update(finishMsg(progress.Snapshot{
			Status:     progress.StatusCompleted,
			IndexStats: &progress.Stats{TotalFiles: 3, UpdatedChunks: 9, DurationMs: 65000},
		}))

		assert.NotNil(t, cmd)
		view := m.View()
		assert.Contains(t, view, "Index built")
		assert.Contains(t, view, "Duration: 1m 5s")
	})

	t.Run("failed", func(t *testing.T) {
		m := newTestModel()

		m.Update(finishMsg(progress.Snapshot{Status: progress.StatusFailed, StatusMsg: "archive too large"}))

		view := m.View()
		assert.Contains(t, view, "Build failed")
		assert.Contains(t, view, "archive too large")
	})
}

func TestBuildModel_DetachOnQuitKey(t *testing.T) {
	m := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Detached")
}

func TestBuildModel_WindowResize(t *testing.T) {
	m := newTestModel()

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 20, m.bar.Width)
	assert.Equal(t, 30, m.width)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}

func TestTruncateFilePath(t *testing.T) {
	assert.Equal(t, "src/main.go", truncateFilePath("src/main.go", 20))
	assert.Equal(t, ".../main.go", truncateFilePath("very/long/directory/main.go", 11))
	assert.Equal(t, "...tory/main.go", truncateFilePath("very/long/directory/main.go", 15))
	assert.Equal(t, "...ongname.go", truncateFilePath("averyveryverylongname.go", 13))
	assert.Equal(t, "...", truncateFilePath("abcdef", 2))
}
