package decode

import (
	"sort"
	"time"
)

// Stop reasons reported on a Hypothesis.
const (
	ReasonEOS       = "eos"
	ReasonMaxLength = "max_length"
)

// Hypothesis is one finished candidate sequence.
type Hypothesis struct {
	// Tokens are the generated tokens, excluding the prompt and the first
	// end-of-sequence token and everything after it.
	Tokens   []int   `json:"tokens"`
	Score    float64 `json:"score"`
	Finished bool    `json:"finished"`
	Reason   string  `json:"reason"`
}

// Output holds the hypotheses of one prompt, best first.
type Output struct {
	ID         string       `json:"id"`
	Prompt     []int        `json:"prompt"`
	Hypotheses []Hypothesis `json:"hypotheses"`
}

// Result is the outcome of Decoder.Run.
type Result struct {
	Outputs  []Output      `json:"outputs"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// finalize reads every live slot back out of the arena and groups the
// hypotheses by prompt.
func finalize(b *Beams, prompts []Prompt, owner []int, eos int) []Output {
	outputs := make([]Output, len(prompts))
	for i, p := range prompts {
		outputs[i] = Output{
			ID:         p.ID,
			Prompt:     append([]int(nil), p.Tokens...),
			Hypotheses: []Hypothesis{},
		}
	}
	for s := 0; s < b.Len(); s++ {
		if b.Dead(s) {
			continue
		}
		gen := b.Generated(s)
		h := Hypothesis{
			Score:    b.Score(s),
			Finished: b.Finished(s),
			Reason:   ReasonMaxLength,
		}
		for k, tok := range gen {
			if tok == eos {
				gen = gen[:k]
				h.Reason = ReasonEOS
				break
			}
		}
		h.Tokens = gen
		o := &outputs[owner[b.Input(s)]]
		o.Hypotheses = append(o.Hypotheses, h)
	}
	for i := range outputs {
		Rerank(outputs[i].Hypotheses)
	}
	return outputs
}

// Rerank orders hypotheses by descending score. Equal scores keep their
// original order.
func Rerank(hyps []Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].Score > hyps[j].Score })
}
