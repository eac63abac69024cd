package logits

import "math"

const (
	// MinProb is the floor applied to a proposal probability before its log is taken.
	MinProb = 1e-9
	// UnderflowScore replaces the accumulated score of a proposal whose
	// probability fell below MinProb.
	UnderflowScore = -1e9
)

// LogProb returns log(max(p, MinProb)) and whether the clamp was applied.
func LogProb(p float64) (float64, bool) {
	if p < MinProb || math.IsNaN(p) {
		return math.Log(MinProb), true
	}
	return math.Log(p), false
}

// ScorePolicy folds a new token log-probability into a cumulative score.
// prevLen is the number of tokens already covered by prev.
type ScorePolicy interface {
	Accumulate(prev float64, prevLen int, logp float64) float64
}

// Average keeps the cumulative score as the mean token log-probability.
type Average struct{}

// Accumulate returns the mean over prevLen+1 tokens.
func (Average) Accumulate(prev float64, prevLen int, logp float64) float64 {
	if prevLen == 0 {
		return logp
	}
	return (logp + prev*float64(prevLen)) / float64(prevLen+1)
}

// WuPenalty normalises by ((5 + L) / 6) ^ Alpha.
type WuPenalty struct {
	Alpha float64
}

func (w WuPenalty) lp(n int) float64 {
	return math.Pow((5+float64(n))/6, w.Alpha)
}

// Accumulate rescales prev from lp(prevLen) to lp(prevLen+1).
func (w WuPenalty) Accumulate(prev float64, prevLen int, logp float64) float64 {
	return (logp + prev*w.lp(prevLen)) / w.lp(prevLen+1)
}

// Sum is the unnormalised sum of log-probabilities.
type Sum struct{}

// Accumulate adds logp to prev.
func (Sum) Accumulate(prev float64, _ int, logp float64) float64 {
	return prev + logp
}

// PolicyFor resolves the length normalisation options. lengthAverage takes
// priority over a positive lengthPenalty.
func PolicyFor(lengthAverage bool, lengthPenalty float64) ScorePolicy {
	switch {
	case lengthAverage:
		return Average{}
	case lengthPenalty > 0:
		return WuPenalty{Alpha: lengthPenalty}
	default:
		return Sum{}
	}
}
