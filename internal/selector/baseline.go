package selector

import "sync"

// DefaultAlpha is the smoothing factor of the per-market volume baseline.
const DefaultAlpha = 0.1

// Baselines is the exponentially smoothed volume baseline per market. It is
// owned by one Scorer and survives across scan cycles.
type Baselines struct {
	mu    sync.Mutex
	alpha float64
	vals  map[string]float64
}

// NewBaselines creates an empty baseline set. alpha outside (0,1] falls back
// to DefaultAlpha.
func NewBaselines(alpha float64) *Baselines {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Baselines{alpha: alpha, vals: make(map[string]float64)}
}

// Observe records volume for marketID and returns the baseline as it stood
// before the update. seen is false on the first observation, in which case
// the baseline is seeded with volume.
func (b *Baselines) Observe(marketID string, volume float64) (prev float64, seen bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, seen = b.vals[marketID]
	if !seen || prev <= 0 {
		b.vals[marketID] = volume
		return prev, seen
	}
	b.vals[marketID] = b.alpha*volume + (1-b.alpha)*prev
	return prev, seen
}

// Get returns the current baseline for marketID.
func (b *Baselines) Get(marketID string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vals[marketID]
	return v, ok
}

// Len returns the number of tracked markets.
func (b *Baselines) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.vals)
}

// Snapshot copies the baselines for persistence.
func (b *Baselines) Snapshot() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.vals))
	for k, v := range b.vals {
		out[k] = v
	}
	return out
}

// Load merges persisted baselines, overwriting in-memory values.
func (b *Baselines) Load(vals map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range vals {
		if v > 0 {
			b.vals[k] = v
		}
	}
}
