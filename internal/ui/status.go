package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo is what the status command shows about an index.
type StatusInfo struct {
	IndexID     string         `json:"indexId"`
	Status      string         `json:"status"`
	Documents   uint64         `json:"documentCount"`
	Segments    int            `json:"numSegments"`
	SizeBytes   int64          `json:"sizeBytes"`
	LastUpdated time.Time      `json:"lastUpdated,omitempty"`
	Version     string         `json:"version"`
	Builds      []BuildSummary `json:"recentBuilds,omitempty"`
}

// BuildSummary is one row of the recent build history.
type BuildSummary struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	TotalFiles    int       `json:"totalFiles"`
	UpdatedChunks int       `json:"updatedChunks"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes info as aligned text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.IndexID))

	_, _ = fmt.Fprintf(r.out, "  Status:       %s\n", r.renderStatus(info.Status))
	_, _ = fmt.Fprintf(r.out, "  Documents:    %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Segments:     %d\n", info.Segments)
	_, _ = fmt.Fprintf(r.out, "  Size:         %s\n", FormatBytes(info.SizeBytes))
	if !info.LastUpdated.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last updated: %s\n", formatTime(info.LastUpdated))
	}
	_, _ = fmt.Fprintf(r.out, "  Version:      %s\n", info.Version)

	if len(info.Builds) == 0 {
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Label.Render("Recent builds:"))
	for _, b := range info.Builds {
		line := fmt.Sprintf("    %s  %s %4d files %5d chunks  %s",
			b.FinishedAt.Format("2006-01-02 15:04"),
			r.statusStyle(b.Status).Render(fmt.Sprintf("%-9s", b.Status)),
			b.TotalFiles, b.UpdatedChunks, b.Source)
		if b.Message != "" && b.Status != "Completed" {
			line += "  " + r.styles.Dim.Render(b.Message)
		}
		_, _ = fmt.Fprintln(r.out, line)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	return r.statusStyle(status).Render(status)
}

func (r *StatusRenderer) statusStyle(status string) lipgloss.Style {
	switch status {
	case "ready", "Completed":
		return r.styles.Success
	case "Failed":
		return r.styles.Error
	default:
		return r.styles.Warning
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
