package decode

import (
	"context"
	"fmt"
)

// Scorer is the model side of the loop. Each call returns next-token logits
// for every slot, shape [slots][vocab]. It must not retain the input.
type Scorer interface {
	Score(ctx context.Context, in *StepInput) (*StepOutput, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, in *StepInput) (*StepOutput, error)

func (f ScorerFunc) Score(ctx context.Context, in *StepInput) (*StepOutput, error) {
	return f(ctx, in)
}

// StepInput is the read-only view of the decoding state handed to the scorer.
type StepInput struct {
	// Step is the number of tokens generated so far.
	Step int
	// Width is the number of slots per input (beam size, or 1 when sampling).
	Width int
	// LastTokens holds the most recent token of every slot.
	LastTokens []int
	// Parents maps every slot to the slot it descended from at the last
	// commit. At step 0 it is the identity.
	Parents []int
	// Positions holds the position id of the token being predicted.
	Positions []int
	// GenerationMask is false for slots that have finished.
	GenerationMask []bool
	// Hidden is the hidden state returned by the previous call, already
	// reordered by Parents. Nil when the scorer returned none.
	Hidden [][]float32

	beams *Beams
}

// Slots returns the number of slots in the batch.
func (in *StepInput) Slots() int {
	return len(in.LastTokens)
}

// History returns the full token history (prompt included) of slot.
func (in *StepInput) History(slot int) []int {
	return in.beams.History(slot)
}

// StepOutput is the scorer's answer for one step.
type StepOutput struct {
	Hidden [][]float32
	Logits [][]float32
}

// safeScore turns a scorer panic into an error.
func safeScore(ctx context.Context, s Scorer, in *StepInput) (out *StepOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Score: %v", rec)
		}
	}()
	return s.Score(ctx, in)
}

func checkOutput(out *StepOutput, slots, vocab int) (int, error) {
	if out == nil {
		return 0, fmt.Errorf("scorer returned no output")
	}
	if len(out.Logits) != slots {
		return 0, fmt.Errorf("logits: got %d rows, want %d", len(out.Logits), slots)
	}
	if vocab == 0 {
		vocab = len(out.Logits[0])
		if vocab == 0 {
			return 0, fmt.Errorf("logits: empty vocabulary")
		}
	}
	for i, row := range out.Logits {
		if len(row) != vocab {
			return 0, fmt.Errorf("logits row %d: got %d columns, want %d", i, len(row), vocab)
		}
	}
	if out.Hidden != nil && len(out.Hidden) != slots {
		return 0, fmt.Errorf("hidden: got %d rows, want %d", len(out.Hidden), slots)
	}
	return vocab, nil
}
