package options

import "fmt"

// Mode is the presentation view over OptimizeImages and GenerateWebP.
type Mode int

const (
	ModeBoth Mode = iota
	ModeOptimizeOnly
	ModeWebPOnly
)

// Modes lists every selectable mode in display order.
var Modes = []Mode{ModeBoth, ModeOptimizeOnly, ModeWebPOnly}

// String returns the identifier used on the command line and over HTTP.
func (m Mode) String() string {
	switch m {
	case ModeOptimizeOnly:
		return "optimize"
	case ModeWebPOnly:
		return "webp"
	default:
		return "both"
	}
}

// Label returns a human-readable description of the mode.
func (m Mode) Label() string {
	switch m {
	case ModeOptimizeOnly:
		return "Optimize only"
	case ModeWebPOnly:
		return "Convert to WebP only"
	default:
		return "Optimize and convert to WebP"
	}
}

// ParseMode parses the identifier returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "both":
		return ModeBoth, nil
	case "optimize":
		return ModeOptimizeOnly, nil
	case "webp":
		return ModeWebPOnly, nil
	}
	return ModeBoth, fmt.Errorf("invalid mode: %s (valid: both, optimize, webp)", s)
}

// DeriveMode classifies the two booleans of o.
// The configuration with both booleans false also reports ModeBoth.
func DeriveMode(o OptimizeOptions) Mode {
	if o.GenerateWebP && !o.OptimizeImages {
		return ModeWebPOnly
	}
	if o.OptimizeImages && !o.GenerateWebP {
		return ModeOptimizeOnly
	}
	return ModeBoth
}

// ApplyMode returns a copy of o with both booleans set for m.
func ApplyMode(m Mode, o OptimizeOptions) OptimizeOptions {
	o.GenerateWebP = m != ModeOptimizeOnly
	o.OptimizeImages = m != ModeWebPOnly
	return o
}
