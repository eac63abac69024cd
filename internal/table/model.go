package table

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/mantle-decode/internal/decode"
)

// Model is an opened table file. It implements decode.Scorer.
type Model struct {
	Header  Header
	data    []byte
	mmapped bool
}

// Open maps a table file read-only and validates it.
// If mmap is unavailable, it falls back to ReadAt-based loading.
// The returned model must be closed to release any mapping.
func Open(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < HeaderSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		m, parseErr := parse(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return m, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parse(data, false)
}

// OpenReaderAt loads a table from a random-access reader without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*Model, error) {
	if size < HeaderSize || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parse(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parse(data []byte, mmapped bool) (*Model, error) {
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, ErrCorruptFile
	}
	if !hdr.Valid() {
		return nil, ErrInvalidMagic
	}
	if !hdr.Compatible() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}
	if hdr.Vocab == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrCorruptFile)
	}
	if want := uint64(HeaderSize) + hdr.PayloadSize(); want != uint64(len(data)) {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrCorruptFile, len(data), want)
	}
	for name, id := range map[string]int32{"bos": hdr.BOS, "eos": hdr.EOS, "unk": hdr.UNK, "mask": hdr.Mask} {
		if id < NoToken || id >= int32(hdr.Vocab) {
			return nil, fmt.Errorf("%w: %s id %d out of range", ErrCorruptFile, name, id)
		}
	}
	return &Model{Header: hdr, data: data, mmapped: mmapped}, nil
}

// Close releases the mapping.
func (m *Model) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	var err error
	if m.mmapped {
		err = unix.Munmap(m.data)
	}
	m.data = nil
	m.mmapped = false
	return err
}

// Vocab returns the vocabulary size.
func (m *Model) Vocab() int {
	return int(m.Header.Vocab)
}

// Row decodes the logits that follow token into dst, growing it if needed.
func (m *Model) Row(dst []float32, token int) ([]float32, error) {
	if m.data == nil {
		return nil, fmt.Errorf("table: model is closed")
	}
	v := m.Vocab()
	if token < 0 || token >= v {
		return nil, fmt.Errorf("table: token %d out of range [0,%d)", token, v)
	}
	if cap(dst) < v {
		dst = make([]float32, v)
	}
	dst = dst[:v]
	off := HeaderSize + token*v*4
	for i := range dst {
		dst[i] = getFloat32(m.data[off+4*i:])
	}
	return dst, nil
}

// Score returns the row of every slot's last token.
func (m *Model) Score(ctx context.Context, in *decode.StepInput) (*decode.StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &decode.StepOutput{Logits: make([][]float32, in.Slots())}
	for i, tok := range in.LastTokens {
		row, err := m.Row(nil, tok)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out.Logits[i] = row
	}
	return out, nil
}

// Configure copies the special token ids stored in the header into cfg.
// Unset ids keep the value already in cfg, except mask which becomes -1.
func (m *Model) Configure(cfg *decode.Config) {
	h := m.Header
	if h.BOS != NoToken {
		cfg.BOSID = int(h.BOS)
	}
	if h.EOS != NoToken {
		cfg.EOSID = int(h.EOS)
	}
	if h.UNK != NoToken {
		cfg.UNKID = int(h.UNK)
	}
	cfg.MaskID = int(h.Mask)
}
