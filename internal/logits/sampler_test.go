package logits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"beam_search", "sampling", "topk_sampling", "topp_sampling"} {
		st, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, Strategy(name), st)
	}
	_, err := ParseStrategy("greedy")
	require.Error(t, err)
}

func TestBeamSelectorTopN(t *testing.T) {
	var s BeamSelector
	got := s.Select([]float64{0.1, 0.4, 0.2, 0.3}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Token)
	assert.Equal(t, 3, got[1].Token)
	assert.InDelta(t, 0.4, got[0].Prob, 1e-12)
}

func TestBeamSelectorStableTies(t *testing.T) {
	var s BeamSelector
	got := s.Select([]float64{0.25, 0.25, 0.25, 0.25}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].Token, got[1].Token, got[2].Token})
}

func TestBeamSelectorWidthLargerThanVocab(t *testing.T) {
	var s BeamSelector
	got := s.Select([]float64{0.7, 0.3}, 5)
	assert.Len(t, got, 2)
}

// TestSamplerDeterminism ensures that two samplers configured identically
// produce identical draws.
func TestSamplerDeterminism(t *testing.T) {
	probs := Softmax(nil, []float32{0, 1, 2, 3, 4, 5}, 0.9)
	for _, st := range []Strategy{Sampling, TopKSampling, TopPSampling} {
		s1 := NewSampler(SamplerConfig{Strategy: st, Seed: 42, TopK: 4, TopP: 0.95})
		s2 := NewSampler(SamplerConfig{Strategy: st, Seed: 42, TopK: 4, TopP: 0.95})
		for i := 0; i < 20; i++ {
			assert.Equal(t, s1.Draw(probs), s2.Draw(probs), "strategy %s draw %d", st, i)
		}
	}
}

func TestSamplerOneHot(t *testing.T) {
	probs := []float64{0, 0, 1, 0}
	for _, st := range []Strategy{Sampling, TopKSampling, TopPSampling} {
		s := NewSampler(SamplerConfig{Strategy: st, Seed: 3, TopK: 2, TopP: 1})
		for i := 0; i < 50; i++ {
			c := s.Select(probs, 1)
			require.Len(t, c, 1)
			assert.Equal(t, 2, c[0].Token, "strategy %s", st)
			assert.Equal(t, 1.0, c[0].Prob)
		}
	}
	var b BeamSelector
	assert.Equal(t, 2, b.Select(probs, 1)[0].Token)
}

func TestTopKSamplingRestricts(t *testing.T) {
	probs := Softmax(nil, []float32{1, 2, 3, 4, 5}, 1)
	s := NewSampler(SamplerConfig{Strategy: TopKSampling, TopK: 2, Seed: 42})

	counts := make(map[int]int)
	for i := 0; i < 500; i++ {
		c := s.Select(probs, 1)[0]
		counts[c.Token]++
		// scoring uses the plain distribution
		assert.InDelta(t, probs[c.Token], c.Prob, 1e-12)
	}
	assert.Zero(t, counts[0]+counts[1]+counts[2])
	assert.Positive(t, counts[3])
	assert.Positive(t, counts[4])
}

func TestTopPSamplingNucleus(t *testing.T) {
	// a:0.5 b:0.3 c:0.15 d:0.05; exclusive prefixes 0, 0.5, 0.8, 0.95.
	probs := []float64{0.15, 0.5, 0.05, 0.3}
	s := NewSampler(SamplerConfig{Strategy: TopPSampling, TopP: 0.9, Seed: 7})

	counts := make(map[int]int)
	for i := 0; i < 2000; i++ {
		counts[s.Draw(probs)]++
	}
	assert.Zero(t, counts[2], "d must be outside the nucleus")
	assert.Positive(t, counts[0])
	assert.Positive(t, counts[1])
	assert.Positive(t, counts[3])
}

func TestPlainSamplingCoversSupport(t *testing.T) {
	probs := []float64{0.5, 0.5}
	s := NewSampler(SamplerConfig{Strategy: Sampling, Seed: 11})
	counts := make(map[int]int)
	for i := 0; i < 200; i++ {
		counts[s.Draw(probs)]++
	}
	assert.Positive(t, counts[0])
	assert.Positive(t, counts[1])
}

func TestNewSelector(t *testing.T) {
	sel, err := NewSelector(BeamSearch, 0, 0, 0)
	require.NoError(t, err)
	assert.IsType(t, &BeamSelector{}, sel)

	sel, err = NewSelector(TopPSampling, 0, 0.9, 1)
	require.NoError(t, err)
	assert.IsType(t, &Sampler{}, sel)

	_, err = NewSelector("nope", 0, 0, 0)
	assert.Error(t, err)
}
