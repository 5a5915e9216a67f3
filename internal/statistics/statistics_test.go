package statistics

import (
	"math"
	"strings"
	"testing"

	"image-optimizer-go/internal/engine"
)

func sampleOutcomes() []engine.Outcome {
	return []engine.Outcome{
		engine.Success{Path: "a.jpg", OriginalPath: "a.jpg", OriginalSize: 1000, FinalSize: 400},
		engine.Success{Path: "b.png", OriginalPath: "b.png", OriginalSize: 2000, FinalSize: 2000},
		engine.Failure{Path: "c.jpg", Error: "decode failed"},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTotalsAndRatio(t *testing.T) {
	outcomes := sampleOutcomes()

	if got := TotalOriginalBytes(outcomes); got != 3000 {
		t.Errorf("TotalOriginalBytes() = %d, want 3000", got)
	}
	if got := TotalFinalBytes(outcomes); got != 2400 {
		t.Errorf("TotalFinalBytes() = %d, want 2400", got)
	}
	if got := AggregateCompressionRatio(outcomes); !almostEqual(got, 0.2) {
		t.Errorf("AggregateCompressionRatio() = %v, want 0.2", got)
	}
}

func TestPerItemRatio(t *testing.T) {
	outcomes := sampleOutcomes()

	first := PerItemRatio(outcomes[0].(engine.Success))
	if !almostEqual(first, 0.6) || Classify(first) != Good {
		t.Errorf("first ratio = %v (%v), want 0.6 good", first, Classify(first))
	}
	second := PerItemRatio(outcomes[1].(engine.Success))
	if second != 0 || Classify(second) != Neutral {
		t.Errorf("second ratio = %v (%v), want 0 neutral", second, Classify(second))
	}

	grown := PerItemRatio(engine.Success{OriginalSize: 100, FinalSize: 150})
	if Classify(grown) != Bad {
		t.Errorf("Classify(%v) = %v, want bad", grown, Classify(grown))
	}
	if Classify(math.NaN()) != Neutral {
		t.Errorf("Classify(NaN) should be neutral")
	}
}

func TestAggregateCompressionRatio_NoSuccess(t *testing.T) {
	outcomes := []engine.Outcome{engine.Failure{Path: "x", Error: "boom"}}
	if got := AggregateCompressionRatio(outcomes); !math.IsNaN(got) {
		t.Errorf("AggregateCompressionRatio() = %v, want NaN", got)
	}
	if got := AggregateCompressionRatio(nil); !math.IsNaN(got) {
		t.Errorf("AggregateCompressionRatio(nil) = %v, want NaN", got)
	}
}

func TestSummarize(t *testing.T) {
	outcomes := sampleOutcomes()
	before := append([]engine.Outcome(nil), outcomes...)

	s := Summarize(outcomes)
	if s.Successes != 2 || s.Failures != 1 || s.Outcomes != 3 {
		t.Errorf("Summarize() counts = %+v", s)
	}
	if s.BytesSaved != 600 {
		t.Errorf("BytesSaved = %d, want 600", s.BytesSaved)
	}
	if !s.HasRatio() {
		t.Errorf("HasRatio() = false")
	}
	if got := s.ReducedSizeLabel(); got != "2.9 KB to 2.3 KB (20%)" {
		t.Errorf("ReducedSizeLabel() = %q", got)
	}
	if !strings.Contains(s.GetErrorSummary(), "c.jpg: decode failed") {
		t.Errorf("GetErrorSummary() = %q", s.GetErrorSummary())
	}
	for i := range before {
		if before[i] != outcomes[i] {
			t.Errorf("Summarize() modified outcome %d", i)
		}
	}

	empty := Summarize(nil)
	if empty.HasRatio() {
		t.Errorf("empty HasRatio() = true")
	}
	if !strings.Contains(empty.GetSummary(), "Compression: -") {
		t.Errorf("empty GetSummary() = %q", empty.GetSummary())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{-2048, "-2.0 KB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
