package engine

import (
	"encoding/json"
	"fmt"
)

// Outcome is the result for one processed item: either Success or Failure.
type Outcome interface {
	// ItemPath returns the path the outcome is reported under.
	ItemPath() string
	isOutcome()
}

// Success describes a file written to the output directory.
type Success struct {
	Path         string `json:"path"`
	OriginalPath string `json:"original_path"`
	OriginalSize int64  `json:"original_size"`
	FinalSize    int64  `json:"final_size"`
}

// Failure describes an item that could not be processed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Wire tags for the "type" field.
const (
	TypeResult = "result"
	TypeError  = "error"
)

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// ItemPath returns the output path.
func (s Success) ItemPath() string { return s.Path }

// ItemPath returns the input path that failed.
func (f Failure) ItemPath() string { return f.Path }

// MarshalJSON adds the "type":"result" tag.
func (s Success) MarshalJSON() ([]byte, error) {
	type plain Success
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeResult, plain(s)})
}

// MarshalJSON adds the "type":"error" tag.
func (f Failure) MarshalJSON() ([]byte, error) {
	type plain Failure
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{TypeError, plain(f)})
}

// DecodeOutcomes parses a JSON array of tagged outcomes.
func DecodeOutcomes(data []byte) ([]Outcome, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	outcomes := make([]Outcome, 0, len(raws))
	for i, raw := range raws {
		var tag struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("decode outcome %d: %w", i, err)
		}
		switch tag.Type {
		case TypeResult:
			var s Success
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("decode outcome %d: %w", i, err)
			}
			outcomes = append(outcomes, s)
		case TypeError:
			var f Failure
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("decode outcome %d: %w", i, err)
			}
			outcomes = append(outcomes, f)
		default:
			return nil, fmt.Errorf("decode outcome %d: unknown type %q", i, tag.Type)
		}
	}
	return outcomes, nil
}
