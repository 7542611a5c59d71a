package logging

// ProgressSampler thins out progress logs for long transfers and encodes.
// It emits once per bucket crossed and once on completion.
type ProgressSampler struct {
	bucketSize float64
	lastBucket int
	done       bool
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent. Non-positive widths fall back to 10.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress update at percent should be logged.
// Negative percentages mean the total is unknown and are never logged.
func (s *ProgressSampler) ShouldLog(percent float64) bool {
	if s == nil {
		return true
	}
	if percent < 0 || s.done {
		return false
	}
	if percent >= 100 {
		s.done = true
		return true
	}
	bucket := int(percent / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

// Percent converts a done/total pair to a percentage, or -1 when total is unknown.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return -1
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
