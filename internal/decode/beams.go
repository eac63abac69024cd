package decode

import "math"

// node is one token in the shared history arena. prev is the arena index of
// the preceding token, -1 at the start of a prompt.
type node struct {
	token int
	prev  int
}

type slot struct {
	input     int
	head      int
	score     float64
	finished  bool
	parent    int
	promptLen int
}

// Beams owns the per-slot bookkeeping of a decoding run. Histories live in
// an append-only arena; a slot only holds the index of its newest token, so
// reassigning a slot to another parent never copies history.
type Beams struct {
	arena []node
	slots []slot
	next  []slot
	width int
	step  int
}

// Choice is the committed outcome for one slot.
type Choice struct {
	Parent int
	Token  int
	Score  float64
}

// NewBeams creates width slots per prompt. Every slot of a group points at
// the same prompt history; slots after the first start with score -Inf so
// that the first expansion comes from a single lineage.
func NewBeams(prompts [][]int, width int) *Beams {
	b := &Beams{width: width}
	total := 0
	for _, p := range prompts {
		total += len(p)
	}
	b.arena = make([]node, 0, total)
	b.slots = make([]slot, 0, len(prompts)*width)
	for i, p := range prompts {
		head := -1
		for _, tok := range p {
			b.arena = append(b.arena, node{token: tok, prev: head})
			head = len(b.arena) - 1
		}
		for j := 0; j < width; j++ {
			s := slot{
				input:     i,
				head:      head,
				parent:    len(b.slots),
				promptLen: len(p),
			}
			if j > 0 {
				s.score = math.Inf(-1)
			}
			b.slots = append(b.slots, s)
		}
	}
	b.next = make([]slot, len(b.slots))
	return b
}

// Len returns the number of slots.
func (b *Beams) Len() int { return len(b.slots) }

// Width returns the number of slots per input.
func (b *Beams) Width() int { return b.width }

// Step returns the number of committed steps.
func (b *Beams) Step() int { return b.step }

// Score returns the cumulative score of slot i.
func (b *Beams) Score(i int) float64 { return b.slots[i].score }

// Finished reports whether slot i has finished.
func (b *Beams) Finished(i int) bool { return b.slots[i].finished }

// Parent returns the slot that slot i descended from at the last commit.
func (b *Beams) Parent(i int) int { return b.slots[i].parent }

// Input returns the prompt index slot i belongs to.
func (b *Beams) Input(i int) int { return b.slots[i].input }

// Dead reports whether slot i holds no hypothesis.
func (b *Beams) Dead(i int) bool { return math.IsInf(b.slots[i].score, -1) }

// LastToken returns the newest token of slot i, or fallback for an empty history.
func (b *Beams) LastToken(i int, fallback int) int {
	if h := b.slots[i].head; h >= 0 {
		return b.arena[h].token
	}
	return fallback
}

// Position returns the position id of the next token of slot i.
func (b *Beams) Position(i int) int {
	return b.slots[i].promptLen + b.step
}

// AllFinished reports whether every live slot has finished.
func (b *Beams) AllFinished() bool {
	for i, s := range b.slots {
		if !s.finished && !b.Dead(i) {
			return false
		}
	}
	return true
}

// History returns the prompt and generated tokens of slot i.
func (b *Beams) History(i int) []int {
	s := b.slots[i]
	out := make([]int, s.promptLen+b.step)
	k := len(out) - 1
	for h := s.head; h >= 0 && k >= 0; h = b.arena[h].prev {
		out[k] = b.arena[h].token
		k--
	}
	return out
}

// Generated returns only the tokens produced by decoding for slot i.
func (b *Beams) Generated(i int) []int {
	return b.History(i)[b.slots[i].promptLen:]
}

// Commit applies one step of choices. choices[i] decides what slot i holds
// next; finished is inherited from the parent and set when token == eos.
func (b *Beams) Commit(choices []Choice, eos int) {
	for i, c := range choices {
		p := b.slots[c.Parent]
		b.arena = append(b.arena, node{token: c.Token, prev: p.head})
		b.next[i] = slot{
			input:     p.input,
			head:      len(b.arena) - 1,
			score:     c.Score,
			finished:  p.finished || c.Token == eos,
			parent:    c.Parent,
			promptLen: p.promptLen,
		}
	}
	b.slots, b.next = b.next, b.slots
	b.step++
}
