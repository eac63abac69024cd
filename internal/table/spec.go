package table

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Transition sets the logit of to following from.
type Transition struct {
	From  int     `yaml:"from"`
	To    int     `yaml:"to"`
	Logit float32 `yaml:"logit"`
}

// Spec is the YAML description of a table model.
type Spec struct {
	Vocab int  `yaml:"vocab"`
	BOS   *int `yaml:"bos_id"`
	EOS   *int `yaml:"eos_id"`
	UNK   *int `yaml:"unk_id"`
	Mask  *int `yaml:"mask_id"`

	// DefaultLogit fills every cell without a transition. YAML accepts -.inf;
	// +Inf and NaN are rejected.
	DefaultLogit float32      `yaml:"default_logit"`
	Transitions  []Transition `yaml:"transitions"`
}

// LoadSpec reads a YAML spec from path.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Validate checks ids and transitions against the vocabulary.
func (s *Spec) Validate() error {
	if s.Vocab <= 0 {
		return fmt.Errorf("vocab must be > 0, got %d", s.Vocab)
	}
	if s.Vocab > math.MaxInt32 {
		return fmt.Errorf("vocab %d too large", s.Vocab)
	}
	for _, id := range []struct {
		name string
		v    *int
	}{{"bos_id", s.BOS}, {"eos_id", s.EOS}, {"unk_id", s.UNK}, {"mask_id", s.Mask}} {
		if id.v != nil && (*id.v < 0 || *id.v >= s.Vocab) {
			return fmt.Errorf("%s %d out of range [0,%d)", id.name, *id.v, s.Vocab)
		}
	}
	if !validLogit(s.DefaultLogit) {
		return fmt.Errorf("default_logit must be finite or -inf, got %v", s.DefaultLogit)
	}
	for i, t := range s.Transitions {
		if t.From < 0 || t.From >= s.Vocab || t.To < 0 || t.To >= s.Vocab {
			return fmt.Errorf("transition %d: %d -> %d out of range [0,%d)", i, t.From, t.To, s.Vocab)
		}
		if !validLogit(t.Logit) {
			return fmt.Errorf("transition %d: logit must be finite or -inf, got %v", i, t.Logit)
		}
	}
	return nil
}

// validLogit accepts finite values and -Inf, which marks an impossible
// transition.
func validLogit(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 1)
}

// Header returns the file header described by s.
func (s *Spec) Header() Header {
	id := func(v *int) int32 {
		if v == nil {
			return NoToken
		}
		return int32(*v)
	}
	h := Header{
		Version: CurrentVersion,
		Vocab:   uint32(s.Vocab),
		BOS:     id(s.BOS),
		EOS:     id(s.EOS),
		UNK:     id(s.UNK),
		Mask:    id(s.Mask),
	}
	copy(h.Magic[:], Magic)
	return h
}

// Pack writes the table file for s to w. Rows are streamed; only one row
// is held in memory. Later transitions for the same cell win.
func Pack(s *Spec, w io.Writer) error {
	if err := s.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	hdr := s.Header()
	if _, err := bw.Write(encodeHeader(&hdr)); err != nil {
		return err
	}

	byRow := make(map[int][]Transition)
	for _, t := range s.Transitions {
		byRow[t.From] = append(byRow[t.From], t)
	}

	row := make([]float32, s.Vocab)
	buf := make([]byte, 4*s.Vocab)
	for from := 0; from < s.Vocab; from++ {
		for i := range row {
			row[i] = s.DefaultLogit
		}
		for _, t := range byRow[from] {
			row[t.To] = t.Logit
		}
		for i, v := range row {
			putFloat32(buf[4*i:], v)
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// PackFile writes the table for s to path.
func PackFile(s *Spec, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Pack(s, f)
}
