package api

import (
	"fmt"

	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/logits"
)

// Limits caps the work a single request may ask for. A zero field disables
// that cap.
type Limits struct {
	MaxPrompts    int
	MaxDecLen     int
	MaxBeamSize   int
	MaxNumSamples int
}

// DefaultLimits returns the caps used by the server when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxPrompts:    256,
		MaxDecLen:     1024,
		MaxBeamSize:   64,
		MaxNumSamples: 64,
	}
}

type limitError struct {
	field      string
	got, limit int
}

func (e limitError) Error() string {
	return fmt.Sprintf("%s: %d exceeds the server limit of %d", e.field, e.got, e.limit)
}

func (e limitError) Field() string {
	return e.field
}

func (e limitError) Unwrap() error {
	return ErrInvalidRequest
}

func exceeds(got, limit int) bool {
	return limit > 0 && got > limit
}

func (l Limits) checkPrompts(n int) error {
	if exceeds(n, l.MaxPrompts) {
		return limitError{field: "prompts", got: n, limit: l.MaxPrompts}
	}
	return nil
}

// checkConfig bounds the options that size the slot arena. beam_size only
// counts for beam search.
func (l Limits) checkConfig(cfg decode.Config) error {
	switch {
	case exceeds(cfg.MaxDecLen, l.MaxDecLen):
		return limitError{field: "max_dec_len", got: cfg.MaxDecLen, limit: l.MaxDecLen}
	case cfg.Strategy == logits.BeamSearch && exceeds(cfg.BeamSize, l.MaxBeamSize):
		return limitError{field: "beam_size", got: cfg.BeamSize, limit: l.MaxBeamSize}
	case exceeds(cfg.NumSamples, l.MaxNumSamples):
		return limitError{field: "num_samples", got: cfg.NumSamples, limit: l.MaxNumSamples}
	}
	return nil
}
