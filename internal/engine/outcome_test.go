package engine

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOutcomeJSON_Tagged(t *testing.T) {
	outcomes := []Outcome{
		Success{Path: "a.webp", OriginalPath: "a.jpg", OriginalSize: 1000, FinalSize: 400},
		Failure{Path: "b.jpg", Error: "decode failed"},
	}
	data, err := json.Marshal(outcomes)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	s := string(data)
	for _, want := range []string{`"type":"result"`, `"original_size":1000`, `"type":"error"`, `"error":"decode failed"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}

	decoded, err := DecodeOutcomes(data)
	if err != nil {
		t.Fatalf("DecodeOutcomes() error = %v", err)
	}
	if len(decoded) != 2 || decoded[0] != outcomes[0] || decoded[1] != outcomes[1] {
		t.Errorf("DecodeOutcomes() = %#v", decoded)
	}
}

func TestDecodeOutcomes_UnknownType(t *testing.T) {
	if _, err := DecodeOutcomes([]byte(`[{"type":"warning","path":"x"}]`)); err == nil {
		t.Errorf("DecodeOutcomes() expected error for unknown type")
	}
}
