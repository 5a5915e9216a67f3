package options

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/store"

	"github.com/sirupsen/logrus"
)

// StoreKey is the key under which options are persisted.
const StoreKey = "options"

// Quality bounds shared by every quality setting.
const (
	MinQuality = 1
	MaxQuality = 100
)

// OptimizeOptions configures a batch run.
type OptimizeOptions struct {
	OptimizeImages    bool `json:"optimize_images"`
	JPGQuality        int  `json:"jpg_quality"`
	GenerateWebP      bool `json:"generate_webp"`
	WebPQuality       int  `json:"webp_quality"`
	WebPFromOptimized bool `json:"webp_from_optimized"`
	UsePNG8           bool `json:"use_png8"`
	PNG8Quality       int  `json:"png8_quality"`
}

// Defaults returns the options used when nothing valid is persisted.
func Defaults() OptimizeOptions {
	return OptimizeOptions{
		OptimizeImages:    true,
		JPGQuality:        80,
		GenerateWebP:      true,
		WebPQuality:       80,
		WebPFromOptimized: false,
		UsePNG8:           false,
		PNG8Quality:       80,
	}
}

// Validate checks that every quality lies within MinQuality..MaxQuality.
func (o OptimizeOptions) Validate() error {
	qualities := []struct {
		name  string
		value int
	}{
		{"jpg_quality", o.JPGQuality},
		{"webp_quality", o.WebPQuality},
		{"png8_quality", o.PNG8Quality},
	}
	for _, q := range qualities {
		if q.value < MinQuality || q.value > MaxQuality {
			return fmt.Errorf("%s must be between %d and %d, got %d", q.name, MinQuality, MaxQuality, q.value)
		}
	}
	return nil
}

// fieldKind is the primitive JSON type a persisted field must have.
type fieldKind int

const (
	kindBool fieldKind = iota
	kindNumber
)

var fieldKinds = map[string]fieldKind{
	"optimize_images":     kindBool,
	"jpg_quality":         kindNumber,
	"generate_webp":       kindBool,
	"webp_quality":        kindNumber,
	"webp_from_optimized": kindBool,
	"use_png8":            kindBool,
	"png8_quality":        kindNumber,
}

// FieldNames returns the recognised option keys.
func FieldNames() []string {
	return []string{
		"optimize_images",
		"jpg_quality",
		"generate_webp",
		"webp_quality",
		"webp_from_optimized",
		"use_png8",
		"png8_quality",
	}
}

// Parse overlays the JSON object in data onto Defaults.
// It reports false and returns Defaults when data is not a structurally valid
// partial options record.
func Parse(data []byte) (OptimizeOptions, bool) {
	defaults := Defaults()

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return defaults, false
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return defaults, false
	}

	merged := defaults
	for key, value := range obj {
		kind, known := fieldKinds[key]
		if !known {
			continue
		}
		switch kind {
		case kindBool:
			b, ok := value.(bool)
			if !ok {
				return defaults, false
			}
			merged.setBool(key, b)
		case kindNumber:
			n, ok := value.(float64)
			if !ok || !wholeNumber(n) {
				return defaults, false
			}
			merged.setInt(key, int(n))
		}
	}
	return merged, true
}

// Set assigns a single field from its textual form, as typed on a command line.
func (o *OptimizeOptions) Set(key, value string) error {
	kind, known := fieldKinds[key]
	if !known {
		return fmt.Errorf("unknown option %q (valid: %s)", key, strings.Join(FieldNames(), ", "))
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	switch kind {
	case kindBool:
		b, ok := parsed.(bool)
		if !ok {
			return fmt.Errorf("%s expects true or false, got %q", key, value)
		}
		o.setBool(key, b)
	case kindNumber:
		n, ok := parsed.(float64)
		if !ok || !wholeNumber(n) {
			return fmt.Errorf("%s expects an integer, got %q", key, value)
		}
		o.setInt(key, int(n))
	}
	return nil
}

// maxExactInt is the largest magnitude a JSON number holds without rounding.
const maxExactInt = 1 << 53

func wholeNumber(n float64) bool {
	return n == math.Trunc(n) && math.Abs(n) <= maxExactInt
}

func (o *OptimizeOptions) setBool(key string, v bool) {
	switch key {
	case "optimize_images":
		o.OptimizeImages = v
	case "generate_webp":
		o.GenerateWebP = v
	case "webp_from_optimized":
		o.WebPFromOptimized = v
	case "use_png8":
		o.UsePNG8 = v
	}
}

func (o *OptimizeOptions) setInt(key string, v int) {
	switch key {
	case "jpg_quality":
		o.JPGQuality = v
	case "webp_quality":
		o.WebPQuality = v
	case "png8_quality":
		o.PNG8Quality = v
	}
}

// Repository loads and saves options through a Store.
type Repository struct {
	store  store.Store
	logger *logrus.Logger
}

// NewRepository returns a Repository persisting to s.
func NewRepository(s store.Store, logger *logrus.Logger) *Repository {
	return &Repository{store: s, logger: logger}
}

// Load returns the persisted options merged onto Defaults.
// Any missing, unreadable or malformed value yields Defaults.
func (r *Repository) Load() OptimizeOptions {
	value, ok, err := r.store.Get(StoreKey)
	if err != nil {
		logger.WithOperation(r.logger, "load_options").Warnf("Failed to read stored options: %v", err)
		return Defaults()
	}
	if !ok {
		return Defaults()
	}
	opts, valid := Parse([]byte(value))
	if !valid {
		logger.WithOperation(r.logger, "load_options").Debug("Stored options are malformed, using defaults")
	}
	return opts
}

// Save persists the full options record.
func (r *Repository) Save(o OptimizeOptions) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := r.store.Set(StoreKey, string(data)); err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	return nil
}
