// Package table implements a bigram scorer backed by a dense logit table.
//
// A table file is a 32-byte little-endian header followed by vocab*vocab
// float32 logits. Row i holds the next-token logits after token i.
package table

import (
	"encoding/binary"
	"math"
)

const (
	Magic = "BGT1"

	CurrentVersion uint16 = 1

	HeaderSize = 32

	// NoToken marks an unset special id in the header.
	NoToken int32 = -1
)

// Header is the fixed prefix of a table file.
type Header struct {
	Magic   [4]byte
	Version uint16
	Flags   uint16
	Vocab   uint32
	BOS     int32
	EOS     int32
	UNK     int32
	Mask    int32
	_       uint32
}

func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic
}

func (h *Header) Compatible() bool {
	return h.Version == CurrentVersion
}

// PayloadSize is the number of logit bytes that follow the header.
func (h *Header) PayloadSize() uint64 {
	v := uint64(h.Vocab)
	return v * v * 4
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint16(buf[6:], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:], h.Vocab)
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.BOS))
	binary.LittleEndian.PutUint32(buf[16:], uint32(h.EOS))
	binary.LittleEndian.PutUint32(buf[20:], uint32(h.UNK))
	binary.LittleEndian.PutUint32(buf[24:], uint32(h.Mask))
	return buf
}

func decodeHeader(buf []byte) (Header, bool) {
	var h Header
	if len(buf) < HeaderSize {
		return h, false
	}
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:])
	h.Flags = binary.LittleEndian.Uint16(buf[6:])
	h.Vocab = binary.LittleEndian.Uint32(buf[8:])
	h.BOS = int32(binary.LittleEndian.Uint32(buf[12:]))
	h.EOS = int32(binary.LittleEndian.Uint32(buf[16:]))
	h.UNK = int32(binary.LittleEndian.Uint32(buf[20:]))
	h.Mask = int32(binary.LittleEndian.Uint32(buf[24:]))
	return h, true
}

func putFloat32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func getFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}
