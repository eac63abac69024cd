package logits

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// NGramTable records, for one candidate lineage, which tokens have followed
// each (n-1)-token prefix. The prefix is keyed by its xxhash.
type NGramTable struct {
	seen map[uint64]map[int]struct{}
	tail []int
}

func newNGramTable() *NGramTable {
	return &NGramTable{seen: make(map[uint64]map[int]struct{})}
}

func (t *NGramTable) clone() *NGramTable {
	c := &NGramTable{
		seen: make(map[uint64]map[int]struct{}, len(t.seen)),
		tail: append([]int(nil), t.tail...),
	}
	for k, followers := range t.seen {
		f := make(map[int]struct{}, len(followers))
		for tok := range followers {
			f[tok] = struct{}{}
		}
		c.seen[k] = f
	}
	return c
}

// Len returns the number of distinct n-grams recorded.
func (t *NGramTable) Len() int {
	n := 0
	for _, f := range t.seen {
		n += len(f)
	}
	return n
}

// NGramBlocker forbids tokens that would recreate an n-gram already emitted
// by the same candidate. Tables follow beam reassignment.
type NGramBlocker struct {
	n      int
	tables []*NGramTable
	used   []bool
	buf    []byte
}

// NewNGramBlocker returns a blocker of order n for the given number of slots.
func NewNGramBlocker(n, slots int) *NGramBlocker {
	b := &NGramBlocker{n: n}
	b.tables = make([]*NGramTable, slots)
	b.Reset()
	return b
}

// Reset clears every slot's table.
func (b *NGramBlocker) Reset() {
	for i := range b.tables {
		b.tables[i] = newNGramTable()
	}
}

// Table returns the table currently owned by slot.
func (b *NGramBlocker) Table(slot int) *NGramTable {
	return b.tables[slot]
}

func (b *NGramBlocker) key(prefix []int) uint64 {
	if cap(b.buf) < 4*len(prefix) {
		b.buf = make([]byte, 4*len(prefix))
	}
	buf := b.buf[:4*len(prefix)]
	for i, tok := range prefix {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(tok))
	}
	return xxhash.Sum64(buf)
}

// Apply adds Forbid to every token that would complete a recorded n-gram.
// Finished slots are skipped. It returns the number of logits penalised.
func (b *NGramBlocker) Apply(rows [][]float32, finished []bool) int {
	blocked := 0
	for slot, row := range rows {
		if finished[slot] {
			continue
		}
		t := b.tables[slot]
		if len(t.tail) < b.n-1 {
			continue
		}
		followers, ok := t.seen[b.key(t.tail)]
		if !ok {
			continue
		}
		for tok := range followers {
			if tok >= 0 && tok < len(row) {
				row[tok] += Forbid
				blocked++
			}
		}
	}
	return blocked
}

// Update re-keys the tables by parents (nil keeps slots in place) and
// records the n-gram completed by each slot's new token. Finished slots are
// re-keyed but not extended.
func (b *NGramBlocker) Update(tokens []int, finished []bool, parents []int) {
	if parents != nil {
		b.rekey(parents)
	}
	for slot, tok := range tokens {
		if finished[slot] {
			continue
		}
		t := b.tables[slot]
		if len(t.tail) == b.n-1 {
			k := b.key(t.tail)
			f, ok := t.seen[k]
			if !ok {
				f = make(map[int]struct{})
				t.seen[k] = f
			}
			f[tok] = struct{}{}
		}
		if b.n <= 1 {
			continue
		}
		t.tail = append(t.tail, tok)
		if len(t.tail) > b.n-1 {
			t.tail = t.tail[len(t.tail)-(b.n-1):]
		}
	}
}

// rekey makes slot i own its parent's table. A parent that fans out to
// several children is cloned for every child after the first.
func (b *NGramBlocker) rekey(parents []int) {
	if cap(b.used) < len(b.tables) {
		b.used = make([]bool, len(b.tables))
	}
	used := b.used[:len(b.tables)]
	for i := range used {
		used[i] = false
	}
	next := make([]*NGramTable, len(b.tables))
	for slot, p := range parents {
		if used[p] {
			next[slot] = b.tables[p].clone()
			continue
		}
		used[p] = true
		next[slot] = b.tables[p]
	}
	b.tables = next
}
