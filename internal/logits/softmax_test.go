package logits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	p := Softmax(nil, []float32{1, 2, 3, -1}, 1)
	var sum float64
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, p[2], p[1])
}

func TestSoftmaxTemperature(t *testing.T) {
	cold := Softmax(nil, []float32{0, 1}, 0.1)
	hot := Softmax(nil, []float32{0, 1}, 10)
	assert.Greater(t, cold[1], hot[1])
}

func TestSoftmaxNegativeInfinity(t *testing.T) {
	p := Softmax(nil, []float32{float32(math.Inf(-1)), 0, 0}, 1)
	assert.Equal(t, 0.0, p[0])
	assert.InDelta(t, 0.5, p[1], 1e-12)
}

func TestSoftmaxForbidIsNegligible(t *testing.T) {
	row := []float32{0, 0, 0}
	row[1] += Forbid
	p := Softmax(nil, row, 1)
	assert.Less(t, p[1], 1e-30)
}

func TestSoftmaxReusesBuffer(t *testing.T) {
	buf := make([]float64, 8)
	p := Softmax(buf, []float32{1, 1}, 1)
	assert.Len(t, p, 2)
	assert.Same(t, &buf[0], &p[0])
}

func TestSoftmaxPositiveInfinity(t *testing.T) {
	inf := float32(math.Inf(1))

	p := Softmax(nil, []float32{0, inf, 1}, 1)
	assert.Equal(t, []float64{0, 1, 0}, p)

	p = Softmax(nil, []float32{inf, float32(math.Inf(-1)), 3, inf}, 0.5)
	assert.Equal(t, []float64{0.5, 0, 0, 0.5}, p)
}

func TestSoftmaxAllNegativeInfinity(t *testing.T) {
	ninf := float32(math.Inf(-1))
	p := Softmax(nil, []float32{ninf, ninf}, 1)
	assert.Equal(t, []float64{0, 0}, p)
}

func TestBeamSelectorPicksPositiveInfinity(t *testing.T) {
	row := []float32{0, 0, 0, 0, 0, float32(math.Inf(1)), 0, 0}
	var s BeamSelector
	got := s.Select(Softmax(nil, row, 1), 2)
	assert.Equal(t, 5, got[0].Token)
	assert.Equal(t, 1.0, got[0].Prob)
}
