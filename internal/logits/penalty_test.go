package logits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPenaltyTokens(t *testing.T) {
	p := NewPenalty(5, 1, 2, 3, true)
	row := make([]float32, 5)
	p.ApplyTokens(row)
	assert.Equal(t, []float32{0, 0, Forbid, Forbid, 0}, row)
}

func TestPenaltyKeepsUnkWhenAllowed(t *testing.T) {
	p := NewPenalty(5, 1, 2, -1, false)
	row := make([]float32, 5)
	p.ApplyTokens(row)
	assert.Equal(t, []float32{0, 0, 0, 0, 0}, row)
}

func TestPenaltyMinLength(t *testing.T) {
	p := NewPenalty(4, 1, 2, -1, true)
	for step := 0; step < 5; step++ {
		row := make([]float32, 4)
		p.ApplyMinLength(row, step, 3)
		if step < 3 {
			assert.Equal(t, float32(Forbid), row[1], "step %d", step)
			probs := Softmax(nil, row, 1)
			assert.Less(t, probs[1], 1e-30)
		} else {
			assert.Zero(t, row[1], "step %d", step)
		}
	}
}

func TestPenaltyFinishedForcesEOS(t *testing.T) {
	p := NewPenalty(4, 1, 2, -1, true)
	row := []float32{5, -3, 7, 2}
	p.ApplyFinished(row)
	probs := Softmax(nil, row, 1)
	assert.InDelta(t, 1.0, probs[1], 1e-9)
}

func TestPenaltyIgnoresOutOfRange(t *testing.T) {
	p := NewPenalty(2, 9, -4, 12, true)
	row := make([]float32, 2)
	p.ApplyTokens(row)
	p.ApplyMinLength(row, 0, 1)
	p.ApplyFinished(row)
	assert.Equal(t, []float32{0, 0}, row)
}
