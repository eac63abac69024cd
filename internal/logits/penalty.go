package logits

// Forbid is the additive penalty that makes a token effectively impossible
// to select while keeping softmax finite.
const Forbid = -1e9

// Penalty applies the fixed additive penalties of a decoding run.
type Penalty struct {
	vocab int
	eos   int
	unk   int
	mask  int

	ignoreUnk bool
}

// NewPenalty returns a Penalty for the given vocabulary and special ids.
// A negative mask id disables mask suppression.
func NewPenalty(vocab, eos, unk, mask int, ignoreUnk bool) *Penalty {
	return &Penalty{
		vocab:     vocab,
		eos:       eos,
		unk:       unk,
		mask:      mask,
		ignoreUnk: ignoreUnk,
	}
}

func (p *Penalty) add(row []float32, id int, v float32) {
	if id < 0 || id >= len(row) {
		return
	}
	row[id] += v
}

// ApplyTokens suppresses the unknown token (when configured) and the mask token.
func (p *Penalty) ApplyTokens(row []float32) {
	if p.ignoreUnk {
		p.add(row, p.unk, Forbid)
	}
	if p.mask >= 0 {
		p.add(row, p.mask, Forbid)
	}
}

// ApplyMinLength suppresses end-of-sequence while step < minLen.
func (p *Penalty) ApplyMinLength(row []float32, step, minLen int) {
	if step < minLen {
		p.add(row, p.eos, Forbid)
	}
}

// ApplyFinished pushes a finished slot's distribution onto end-of-sequence so
// that its next token is a no-op.
func (p *Penalty) ApplyFinished(row []float32) {
	p.add(row, p.eos, -Forbid)
}
