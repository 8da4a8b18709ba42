package ui

import "strings"

// sparkLevels are the eight bar heights, lowest first.
var sparkLevels = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last samples of a rate in a ring buffer and draws
// them as block characters scaled to the largest sample held.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add records a sample. Negative samples count as zero.
func (s *Sparkline) Add(v float64) {
	if v < 0 {
		v = 0
	}
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns the number of samples added so far.
func (s *Sparkline) Count() int {
	return s.count
}

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := min(s.count, len(s.samples))
	n = min(n, held)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := (s.head - n + i + len(s.samples)) % len(s.samples)
		out[i] = s.samples[idx]
	}
	return out
}

// Render draws the newest samples into width cells, right aligned and
// padded with spaces on the left.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		return ""
	}
	vals := s.recent(width)

	var peak float64
	for _, v := range vals {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(vals)))
	for _, v := range vals {
		level := 0
		if peak > 0 {
			level = int(v / peak * float64(len(sparkLevels)-1))
		}
		sb.WriteRune(sparkLevels[level])
	}
	return sb.String()
}
