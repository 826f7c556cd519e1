package logic

// Summary describes the valid readings seen in a window.
type Summary struct {
	Min   int32
	Max   int32
	Avg   int32
	Count int
}

// Aggregator accumulates min/max/mean between transmissions.
type Aggregator struct {
	min, max int32
	sum      int64
	n        int
}

// Add records a valid reading. Invalid readings are ignored.
func (a *Aggregator) Add(r Reading) {
	if !r.Valid {
		return
	}
	if a.n == 0 || r.Value < a.min {
		a.min = r.Value
	}
	if a.n == 0 || r.Value > a.max {
		a.max = r.Value
	}
	a.sum += int64(r.Value)
	a.n++
}

// Summary returns the window statistics; ok is false for an empty window.
func (a *Aggregator) Summary() (s Summary, ok bool) {
	if a.n == 0 {
		return s, false
	}
	return Summary{
		Min:   a.min,
		Max:   a.max,
		Avg:   int32(a.sum / int64(a.n)),
		Count: a.n,
	}, true
}

// Reset starts a new window.
func (a *Aggregator) Reset() {
	*a = Aggregator{}
}
