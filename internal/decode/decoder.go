package decode

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/samcharles93/mantle-decode/internal/logger"
	"github.com/samcharles93/mantle-decode/internal/logits"
	"github.com/samcharles93/mantle-decode/internal/metrics"
)

// Prompt is one input of a decoding call. ID is passed through to the output.
type Prompt struct {
	ID     string `json:"id" yaml:"id"`
	Tokens []int  `json:"tokens" yaml:"tokens"`
}

// Decoder runs the step-synchronised decoding loop over a batch of prompts.
type Decoder struct {
	cfg    Config
	scorer Scorer
	policy logits.ScorePolicy
	log    logger.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger. By default the logger is taken from the
// context passed to Run.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		d.log = l
	}
}

// New validates cfg and returns a Decoder bound to scorer.
func New(cfg Config, scorer Scorer, opts ...Option) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	d := &Decoder{
		cfg:    cfg,
		scorer: scorer,
		policy: logits.PolicyFor(cfg.LengthAverage, cfg.LengthPenalty),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the decoder configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Run decodes every prompt and returns the finished hypotheses. The loop
// stops when MaxDecLen steps have run or every slot has finished. A scorer
// failure aborts the whole batch.
func (d *Decoder) Run(ctx context.Context, prompts []Prompt) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := d.log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	strategy := string(d.cfg.Strategy)
	if len(prompts) == 0 {
		return &Result{Outputs: []Output{}}, nil
	}

	start := time.Now()
	r, err := d.newRun(prompts)
	if err != nil {
		return nil, err
	}
	metrics.BatchSlots.Observe(float64(r.beams.Len()))

	for r.beams.Step() < d.cfg.MaxDecLen && !r.beams.AllFinished() {
		if err := r.step(ctx); err != nil {
			metrics.DecodeRunsTotal.WithLabelValues(strategy, "error").Inc()
			log.Error("decode failed", "step", r.beams.Step(), "error", err)
			return nil, err
		}
		log.Debug("decode step",
			"step", r.beams.Step(),
			"live", r.live,
			"underflow", r.underflow,
			"blocked", r.blocked,
		)
	}

	res := &Result{
		Outputs:  finalize(r.beams, prompts, r.owner, d.cfg.EOSID),
		Steps:    r.beams.Step(),
		Duration: time.Since(start),
	}
	metrics.DecodeRunsTotal.WithLabelValues(strategy, "ok").Inc()
	metrics.DecodeDuration.WithLabelValues(strategy).Observe(res.Duration.Seconds())
	log.Info("decode finished",
		"strategy", strategy,
		"inputs", len(prompts),
		"slots", r.beams.Len(),
		"steps", res.Steps,
		"duration", res.Duration,
	)
	return res, nil
}

// run holds the per-call loop state. Buffers are sized once and reused
// every step.
type run struct {
	d        *Decoder
	beams    *Beams
	owner    []int
	selector logits.Selector
	blocker  *logits.NGramBlocker
	penalty  *logits.Penalty
	vocab    int

	rows     [][]float32
	probs    []float64
	hidden   [][]float32
	choices  []Choice
	cands    []Choice
	tokens   []int
	finished []bool
	parents  []int

	live      int
	underflow int
	blocked   int
}

func (d *Decoder) newRun(prompts []Prompt) (*run, error) {
	width := d.cfg.width()
	copies := d.cfg.copies()

	expanded := make([][]int, 0, len(prompts)*copies)
	owner := make([]int, 0, len(prompts)*copies)
	for i, p := range prompts {
		toks := p.Tokens
		if len(toks) == 0 {
			toks = []int{d.cfg.BOSID}
		}
		for c := 0; c < copies; c++ {
			expanded = append(expanded, toks)
			owner = append(owner, i)
		}
	}

	selector, err := logits.NewSelector(d.cfg.Strategy, d.cfg.TopK, d.cfg.TopP, d.cfg.Seed)
	if err != nil {
		return nil, newConfigError("decoding_strategy", "%v", err)
	}

	beams := NewBeams(expanded, width)
	n := beams.Len()
	r := &run{
		d:        d,
		beams:    beams,
		owner:    owner,
		selector: selector,
		rows:     make([][]float32, n),
		choices:  make([]Choice, n),
		tokens:   make([]int, n),
		finished: make([]bool, n),
		parents:  make([]int, n),
	}
	for i := range r.parents {
		r.parents[i] = i
	}
	if d.cfg.NGramBlocking > 0 {
		r.blocker = logits.NewNGramBlocker(d.cfg.NGramBlocking, n)
	}
	return r, nil
}

func (r *run) input() *StepInput {
	b := r.beams
	n := b.Len()
	in := &StepInput{
		Step:           b.Step(),
		Width:          b.Width(),
		LastTokens:     make([]int, n),
		Parents:        append([]int(nil), r.parents...),
		Positions:      make([]int, n),
		GenerationMask: make([]bool, n),
		Hidden:         r.hidden,
		beams:          b,
	}
	for i := 0; i < n; i++ {
		in.LastTokens[i] = b.LastToken(i, r.d.cfg.BOSID)
		in.Positions[i] = b.Position(i)
		in.GenerationMask[i] = !b.Finished(i) && !b.Dead(i)
	}
	return in
}

func (r *run) step(ctx context.Context) error {
	cfg := r.d.cfg
	b := r.beams
	step := b.Step()
	n := b.Len()

	out, err := safeScore(ctx, r.d.scorer, r.input())
	if err != nil {
		return &ScoreError{Step: step, Err: err}
	}
	vocab, err := checkOutput(out, n, r.vocab)
	if err != nil {
		return &ScoreError{Step: step, Err: err}
	}
	if r.penalty == nil {
		r.vocab = vocab
		r.penalty = logits.NewPenalty(vocab, cfg.EOSID, cfg.UNKID, cfg.MaskID, cfg.IgnoreUnk)
		for i := range r.rows {
			r.rows[i] = make([]float32, vocab)
		}
	}

	for i := 0; i < n; i++ {
		r.finished[i] = b.Finished(i)
		copy(r.rows[i], out.Logits[i])
		r.penalty.ApplyTokens(r.rows[i])
	}
	r.blocked = 0
	if r.blocker != nil {
		r.blocked = r.blocker.Apply(r.rows, r.finished)
		metrics.NGramBlocked.Add(float64(r.blocked))
	}
	for i := 0; i < n; i++ {
		r.penalty.ApplyMinLength(r.rows[i], step, cfg.MinDecLen)
		if r.finished[i] {
			r.penalty.ApplyFinished(r.rows[i])
		}
	}

	r.underflow = 0
	if cfg.Strategy == logits.BeamSearch {
		r.selectBeams(step)
	} else {
		r.selectSamples(step)
	}
	metrics.NumericalUnderflow.Add(float64(r.underflow))

	b.Commit(r.choices, cfg.EOSID)

	r.live = 0
	for i, c := range r.choices {
		r.parents[i] = c.Parent
		r.tokens[i] = c.Token
		r.finished[i] = b.Finished(i)
		if !r.finished[i] {
			r.live++
		}
	}
	if r.blocker != nil {
		if cfg.Strategy == logits.BeamSearch {
			r.blocker.Update(r.tokens, r.finished, r.parents)
		} else {
			r.blocker.Update(r.tokens, r.finished, nil)
		}
	}
	r.hidden = reorderHidden(out.Hidden, r.parents)

	metrics.DecodeStepsTotal.Inc()
	metrics.DecodeTokensTotal.Add(float64(r.live))
	return nil
}

// propose scores the proposals of one live slot and appends them to dst.
func (r *run) propose(dst []Choice, slot, step, n int) []Choice {
	b := r.beams
	r.probs = logits.Softmax(r.probs, r.rows[slot], r.d.cfg.Temperature)
	for _, c := range r.selector.Select(r.probs, n) {
		logp, under := logits.LogProb(c.Prob)
		score := r.d.policy.Accumulate(b.Score(slot), step, logp)
		if under {
			score = logits.UnderflowScore
			r.underflow++
		}
		dst = append(dst, Choice{Parent: slot, Token: c.Token, Score: score})
	}
	return dst
}

// frozen is the no-op choice of a finished slot: it repeats end-of-sequence
// and keeps its score.
func (r *run) frozen(slot int) Choice {
	return Choice{Parent: slot, Token: r.d.cfg.EOSID, Score: r.beams.Score(slot)}
}

// selectBeams expands every live beam of an input by its top-width tokens
// and keeps the global top-width candidates, recording their parents.
func (r *run) selectBeams(step int) {
	b := r.beams
	w := b.Width()
	for g := 0; g < b.Len(); g += w {
		cands := r.cands[:0]
		for s := g; s < g+w; s++ {
			switch {
			case b.Finished(s):
				cands = append(cands, r.frozen(s))
			case b.Dead(s):
			default:
				cands = r.propose(cands, s, step, w)
			}
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
		for j := 0; j < w; j++ {
			if j < len(cands) {
				r.choices[g+j] = cands[j]
				continue
			}
			r.choices[g+j] = Choice{Parent: g, Token: r.d.cfg.EOSID, Score: math.Inf(-1)}
		}
		r.cands = cands
	}
}

// selectSamples draws one token per slot; slots never change parent.
func (r *run) selectSamples(step int) {
	b := r.beams
	for s := 0; s < b.Len(); s++ {
		if b.Finished(s) {
			r.choices[s] = r.frozen(s)
			continue
		}
		r.cands = r.propose(r.cands[:0], s, step, 1)
		r.choices[s] = r.cands[0]
	}
}

func reorderHidden(hidden [][]float32, parents []int) [][]float32 {
	if hidden == nil {
		return nil
	}
	out := make([][]float32, len(parents))
	for i, p := range parents {
		out[i] = append([]float32(nil), hidden[p]...)
	}
	return out
}
