package statistics

import (
	"fmt"
	"math"
	"strings"

	"image-optimizer-go/internal/engine"
)

// Class grades a per-item compression ratio.
type Class int

const (
	Neutral Class = iota
	Good
	Bad
)

// String returns the class name used in presentation.
func (c Class) String() string {
	switch c {
	case Good:
		return "good"
	case Bad:
		return "bad"
	default:
		return "neutral"
	}
}

// TotalOriginalBytes sums OriginalSize over Success outcomes.
func TotalOriginalBytes(outcomes []engine.Outcome) int64 {
	var total int64
	for _, o := range outcomes {
		if s, ok := o.(engine.Success); ok {
			total += s.OriginalSize
		}
	}
	return total
}

// TotalFinalBytes sums FinalSize over Success outcomes.
func TotalFinalBytes(outcomes []engine.Outcome) int64 {
	var total int64
	for _, o := range outcomes {
		if s, ok := o.(engine.Success); ok {
			total += s.FinalSize
		}
	}
	return total
}

// AggregateCompressionRatio returns 1 - final/original over Success outcomes.
// It is NaN when no original bytes were counted.
func AggregateCompressionRatio(outcomes []engine.Outcome) float64 {
	return ratio(TotalOriginalBytes(outcomes), TotalFinalBytes(outcomes))
}

// PerItemRatio returns 1 - final/original for s, NaN when s.OriginalSize is 0.
func PerItemRatio(s engine.Success) float64 {
	return ratio(s.OriginalSize, s.FinalSize)
}

// Classify grades a ratio: Good when the file shrank, Bad when it grew.
// Exactly 0 and NaN are Neutral.
func Classify(r float64) Class {
	switch {
	case r > 0:
		return Good
	case r < 0:
		return Bad
	default:
		return Neutral
	}
}

func ratio(original, final int64) float64 {
	if original == 0 {
		return math.NaN()
	}
	return 1 - float64(final)/float64(original)
}

// Statistics summarizes a completed run. It is derived from the outcomes and
// never changes them.
type Statistics struct {
	Outcomes         int
	Successes        int
	Failures         int
	OriginalBytes    int64
	FinalBytes       int64
	BytesSaved       int64
	CompressionRatio float64
	Errors           []engine.Failure
}

// Summarize computes Statistics for outcomes.
func Summarize(outcomes []engine.Outcome) *Statistics {
	s := &Statistics{Outcomes: len(outcomes)}
	for _, o := range outcomes {
		switch v := o.(type) {
		case engine.Success:
			s.Successes++
		case engine.Failure:
			s.Failures++
			s.Errors = append(s.Errors, v)
		}
	}
	s.OriginalBytes = TotalOriginalBytes(outcomes)
	s.FinalBytes = TotalFinalBytes(outcomes)
	s.BytesSaved = s.OriginalBytes - s.FinalBytes
	s.CompressionRatio = AggregateCompressionRatio(outcomes)
	return s
}

// HasRatio reports whether CompressionRatio is defined.
func (s *Statistics) HasRatio() bool {
	return !math.IsNaN(s.CompressionRatio)
}

// ReducedSizeLabel renders "<original> to <final> (<ratio>%)".
func (s *Statistics) ReducedSizeLabel() string {
	return fmt.Sprintf("%s to %s (%s)", FormatBytes(s.OriginalBytes), FormatBytes(s.FinalBytes), FormatRatio(s.CompressionRatio))
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	return fmt.Sprintf(`Image Optimizer Summary:

Files:
		Outcomes: %d
		Succeeded: %d
		Failed: %d

Size:
		Original: %s
		Final: %s
		Saved: %s
		Compression: %s`,
		s.Outcomes,
		s.Successes,
		s.Failures,
		FormatBytes(s.OriginalBytes),
		FormatBytes(s.FinalBytes),
		FormatBytes(s.BytesSaved),
		FormatRatio(s.CompressionRatio))
}

// GetErrorSummary lists failures, at most ten of them.
func (s *Statistics) GetErrorSummary() string {
	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, f := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  %s: %s\n", f.Path, f.Error)
	}
	return b.String()
}

// FormatRatio renders a ratio as a rounded percentage, or "-" when undefined.
func FormatRatio(r float64) string {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Round(r*100)))
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
