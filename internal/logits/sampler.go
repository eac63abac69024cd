package logits

import (
	"fmt"
	"math/rand"
	"sort"
)

// Strategy names a candidate selection strategy.
type Strategy string

const (
	BeamSearch   Strategy = "beam_search"
	Sampling     Strategy = "sampling"
	TopKSampling Strategy = "topk_sampling"
	TopPSampling Strategy = "topp_sampling"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case BeamSearch, Sampling, TopKSampling, TopPSampling:
		return st, nil
	default:
		return "", fmt.Errorf("unknown decoding strategy %q", s)
	}
}

// Candidate is a proposed next token and its probability under the plain
// (untruncated) distribution.
type Candidate struct {
	Token int
	Prob  float64
}

// Selector converts a probability distribution into next-token proposals.
type Selector interface {
	// Select returns up to n candidates. Implementations may reuse the
	// returned slice on the next call.
	Select(probs []float64, n int) []Candidate
}

// BeamSelector proposes the n most probable tokens. Ties keep the lower id.
type BeamSelector struct {
	out []Candidate
}

// Select returns the n most probable tokens, most probable first. The
// returned slice is reused by the next call.
func (s *BeamSelector) Select(probs []float64, n int) []Candidate {
	n = min(n, len(probs))
	if n <= 0 {
		return nil
	}
	if cap(s.out) < n+1 {
		s.out = make([]Candidate, 0, n+1)
	}
	top := s.out[:0]

	// O(V*n) insertion; n is the beam width.
	for i, p := range probs {
		pos := len(top)
		for pos > 0 && top[pos-1].Prob < p {
			pos--
		}
		if pos >= n {
			continue
		}
		top = append(top, Candidate{})
		copy(top[pos+1:], top[pos:])
		top[pos] = Candidate{Token: i, Prob: p}
		if len(top) > n {
			top = top[:n]
		}
	}
	s.out = top
	return top
}

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	Strategy Strategy
	TopK     int
	TopP     float64
	// Seed < 0 draws a random seed.
	Seed int64
}

// Sampler draws one token per call from plain, top-k or top-p restricted
// distributions.
type Sampler struct {
	rng   *rand.Rand
	cfg   SamplerConfig
	order []int
	kept  []float64
	out   [1]Candidate
}

// NewSampler returns a sampler for the given configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	seed := cfg.Seed
	if seed < 0 {
		seed = rand.Int63()
	}
	return &Sampler{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic seeding is required
		cfg: cfg,
	}
}

// Select draws one token; n is ignored.
func (s *Sampler) Select(probs []float64, _ int) []Candidate {
	if len(probs) == 0 {
		return nil
	}
	tok := s.Draw(probs)
	s.out[0] = Candidate{Token: tok, Prob: probs[tok]}
	return s.out[:]
}

// Draw returns a token id sampled according to the configured strategy.
func (s *Sampler) Draw(probs []float64) int {
	switch s.cfg.Strategy {
	case TopKSampling:
		return s.drawTopK(probs)
	case TopPSampling:
		return s.drawTopP(probs)
	default:
		return s.multinomial(probs)
	}
}

// drawTopK keeps tokens whose probability reaches the k-th largest one and
// samples from them renormalised.
func (s *Sampler) drawTopK(probs []float64) int {
	k := s.cfg.TopK
	if k <= 0 || k >= len(probs) {
		return s.multinomial(probs)
	}
	var top BeamSelector
	cands := top.Select(probs, k)
	threshold := cands[len(cands)-1].Prob

	if cap(s.kept) < len(probs) {
		s.kept = make([]float64, len(probs))
	}
	kept := s.kept[:len(probs)]
	for i, p := range probs {
		if p >= threshold {
			kept[i] = p
		} else {
			kept[i] = 0
		}
	}
	return s.multinomial(kept)
}

// drawTopP sorts by descending probability and keeps the prefix whose
// exclusive cumulative probability stays below TopP.
func (s *Sampler) drawTopP(probs []float64) int {
	if cap(s.order) < len(probs) {
		s.order = make([]int, len(probs))
	}
	order := s.order[:len(probs)]
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	if cap(s.kept) < len(probs) {
		s.kept = make([]float64, len(probs))
	}
	kept := s.kept[:0]
	var cum float64
	for _, id := range order {
		if cum >= s.cfg.TopP {
			break
		}
		kept = append(kept, probs[id])
		cum += probs[id]
	}
	rank := s.multinomial(kept)
	return order[rank]
}

// multinomial samples an index proportionally to weights, which need not be
// normalised.
func (s *Sampler) multinomial(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return argmax(weights)
	}
	r := s.rng.Float64() * total
	var c float64
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		c += w
		last = i
		if r < c {
			return i
		}
	}
	// rounding
	return last
}

// NewSelector builds the selector for a strategy.
func NewSelector(strategy Strategy, topK int, topP float64, seed int64) (Selector, error) {
	switch strategy {
	case BeamSearch:
		return &BeamSelector{}, nil
	case Sampling, TopKSampling, TopPSampling:
		return NewSampler(SamplerConfig{Strategy: strategy, TopK: topK, TopP: topP, Seed: seed}), nil
	default:
		return nil, fmt.Errorf("unknown decoding strategy %q", strategy)
	}
}
