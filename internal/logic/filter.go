package logic

import (
	"math"
	"slices"
)

// DefaultAlpha is the EMA weight given to a new median.
const DefaultAlpha = 0.3

// Filter reduces the cycles of one sampling round to a single reading:
// the median of the valid cycles, smoothed across rounds by an EMA.
type Filter struct {
	alpha  float64
	ema    float64
	seeded bool
}

// NewFilter returns a filter with EMA weight alpha in (0, 1].
// Out-of-range values fall back to DefaultAlpha.
func NewFilter(alpha float64) *Filter {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Filter{alpha: alpha}
}

// Apply filters one round. A strict majority of cycles must be valid,
// otherwise the result is invalid and the EMA is left untouched.
func (f *Filter) Apply(cycles []Reading) Reading {
	valid := make([]int32, 0, len(cycles))
	for _, c := range cycles {
		if c.Valid {
			valid = append(valid, c.Value)
		}
	}
	if len(cycles) == 0 || len(valid)*2 <= len(cycles) {
		return InvalidReading(ErrorInsufficientSamples)
	}

	slices.Sort(valid)
	median := float64(valid[len(valid)/2])

	if !f.seeded {
		f.ema = median
		f.seeded = true
	} else {
		f.ema = f.alpha*median + (1-f.alpha)*f.ema
	}
	return ValidReading(int32(math.Round(f.ema)))
}

// Value returns the current EMA and whether it has been seeded.
func (f *Filter) Value() (float64, bool) {
	return f.ema, f.seeded
}

// Reset forgets the EMA history.
func (f *Filter) Reset() {
	f.ema = 0
	f.seeded = false
}
