package decode

import (
	"github.com/samcharles93/mantle-decode/internal/logits"
)

// Config holds the recognised decoding options.
type Config struct {
	Strategy logits.Strategy `yaml:"decoding_strategy" json:"decoding_strategy"`

	MinDecLen   int     `yaml:"min_dec_len" json:"min_dec_len"`
	MaxDecLen   int     `yaml:"max_dec_len" json:"max_dec_len"`
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// top-k sampling
	TopK int `yaml:"topk" json:"topk"`
	// top-p sampling
	TopP float64 `yaml:"topp" json:"topp"`

	// beam search
	BeamSize      int     `yaml:"beam_size" json:"beam_size"`
	LengthAverage bool    `yaml:"length_average" json:"length_average"`
	LengthPenalty float64 `yaml:"length_penalty" json:"length_penalty"`

	// 0 disables n-gram blocking.
	NGramBlocking int  `yaml:"ngram_blocking" json:"ngram_blocking"`
	IgnoreUnk     bool `yaml:"ignore_unk" json:"ignore_unk"`

	// NumSamples > 1 decodes every prompt that many times and reranks the
	// samples by score. 0 means unset.
	NumSamples int `yaml:"num_samples" json:"num_samples"`

	// Seed < 0 seeds the sampler randomly.
	Seed int64 `yaml:"seed" json:"seed"`

	BOSID  int `yaml:"bos_id" json:"bos_id"`
	EOSID  int `yaml:"eos_id" json:"eos_id"`
	UNKID  int `yaml:"unk_id" json:"unk_id"`
	MaskID int `yaml:"mask_id" json:"mask_id"`
}

// DefaultConfig returns the stock decoding options.
func DefaultConfig() Config {
	return Config{
		Strategy:      logits.TopKSampling,
		MinDecLen:     1,
		MaxDecLen:     64,
		Temperature:   1,
		TopK:          10,
		TopP:          0.9,
		BeamSize:      10,
		LengthAverage: true,
		LengthPenalty: 0,
		NGramBlocking: 0,
		IgnoreUnk:     true,
		NumSamples:    0,
		Seed:          -1,
		BOSID:         0,
		EOSID:         1,
		UNKID:         2,
		MaskID:        -1,
	}
}

// Validate checks the configuration before any decoding work starts.
func (c Config) Validate() error {
	if _, err := logits.ParseStrategy(string(c.Strategy)); err != nil {
		return newConfigError("decoding_strategy", "%v", err)
	}
	if c.MinDecLen < 0 {
		return newConfigError("min_dec_len", "must be >= 0, got %d", c.MinDecLen)
	}
	if c.MaxDecLen < 1 {
		return newConfigError("max_dec_len", "must be >= 1, got %d", c.MaxDecLen)
	}
	if !(c.Temperature > 0) {
		return newConfigError("temperature", "must be > 0, got %g", c.Temperature)
	}
	if c.Strategy == logits.TopKSampling && c.TopK <= 0 {
		return newConfigError("topk", "must be > 0, got %d", c.TopK)
	}
	if !(c.TopP > 0 && c.TopP <= 1) {
		return newConfigError("topp", "must be in (0, 1], got %g", c.TopP)
	}
	if c.BeamSize < 1 {
		return newConfigError("beam_size", "must be >= 1, got %d", c.BeamSize)
	}
	if c.LengthPenalty < 0 {
		return newConfigError("length_penalty", "must be >= 0, got %g", c.LengthPenalty)
	}
	if c.NGramBlocking < 0 {
		return newConfigError("ngram_blocking", "must be >= 0, got %d", c.NGramBlocking)
	}
	if c.NumSamples < 0 {
		return newConfigError("num_samples", "must be >= 0, got %d", c.NumSamples)
	}
	if c.NumSamples > 1 && c.Strategy == logits.BeamSearch {
		return newConfigError("num_samples", "reranking multiple samples requires a sampling strategy")
	}
	if c.EOSID < 0 {
		return newConfigError("eos_id", "must be >= 0, got %d", c.EOSID)
	}
	return nil
}

// width is the number of slots per input.
func (c Config) width() int {
	if c.Strategy == logits.BeamSearch {
		return c.BeamSize
	}
	return 1
}

// copies is the number of times each prompt is decoded.
func (c Config) copies() int {
	if c.NumSamples > 1 {
		return c.NumSamples
	}
	return 1
}

// Options mirrors Config with optional fields so callers can override
// defaults selectively.
type Options struct {
	Strategy      *string  `yaml:"decoding_strategy,omitempty" json:"decoding_strategy,omitempty"`
	MinDecLen     *int     `yaml:"min_dec_len,omitempty" json:"min_dec_len,omitempty"`
	MaxDecLen     *int     `yaml:"max_dec_len,omitempty" json:"max_dec_len,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopK          *int     `yaml:"topk,omitempty" json:"topk,omitempty"`
	TopP          *float64 `yaml:"topp,omitempty" json:"topp,omitempty"`
	BeamSize      *int     `yaml:"beam_size,omitempty" json:"beam_size,omitempty"`
	LengthAverage *bool    `yaml:"length_average,omitempty" json:"length_average,omitempty"`
	LengthPenalty *float64 `yaml:"length_penalty,omitempty" json:"length_penalty,omitempty"`
	NGramBlocking *int     `yaml:"ngram_blocking,omitempty" json:"ngram_blocking,omitempty"`
	IgnoreUnk     *bool    `yaml:"ignore_unk,omitempty" json:"ignore_unk,omitempty"`
	NumSamples    *int     `yaml:"num_samples,omitempty" json:"num_samples,omitempty"`
	Seed          *int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Apply returns base with every set option overriding it.
func (o Options) Apply(base Config) Config {
	cfg := base
	if o.Strategy != nil {
		cfg.Strategy = logits.Strategy(*o.Strategy)
	}
	if o.MinDecLen != nil {
		cfg.MinDecLen = *o.MinDecLen
	}
	if o.MaxDecLen != nil {
		cfg.MaxDecLen = *o.MaxDecLen
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.TopK != nil {
		cfg.TopK = *o.TopK
	}
	if o.TopP != nil {
		cfg.TopP = *o.TopP
	}
	if o.BeamSize != nil {
		cfg.BeamSize = *o.BeamSize
	}
	if o.LengthAverage != nil {
		cfg.LengthAverage = *o.LengthAverage
	}
	if o.LengthPenalty != nil {
		cfg.LengthPenalty = *o.LengthPenalty
	}
	if o.NGramBlocking != nil {
		cfg.NGramBlocking = *o.NGramBlocking
	}
	if o.IgnoreUnk != nil {
		cfg.IgnoreUnk = *o.IgnoreUnk
	}
	if o.NumSamples != nil {
		cfg.NumSamples = *o.NumSamples
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	return cfg
}
