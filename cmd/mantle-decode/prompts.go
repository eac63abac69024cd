package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/mantle-decode/internal/decode"
)

// readPrompts parses JSON Lines of {"id": ..., "tokens": [...]}. Blank lines
// are skipped; a missing id gets a random one.
func readPrompts(r io.Reader) ([]decode.Prompt, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var out []decode.Prompt
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var p decode.Prompt
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTokens parses a comma or space separated list of token ids.
func parseTokens(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid token %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

// writeOutputs writes one JSON object per output.
func writeOutputs(w io.Writer, outputs []decode.Output) error {
	enc := json.NewEncoder(w)
	for i := range outputs {
		if err := enc.Encode(&outputs[i]); err != nil {
			return err
		}
	}
	return nil
}

func batches(prompts []decode.Prompt, size int) [][]decode.Prompt {
	if size <= 0 {
		size = len(prompts)
	}
	var out [][]decode.Prompt
	for start := 0; start < len(prompts); start += size {
		out = append(out, prompts[start:min(start+size, len(prompts))])
	}
	return out
}
