package api

import "sync"

// DefaultStoreSize bounds the number of results kept in memory.
const DefaultStoreSize = 1024

// ResultStore keeps finished decode results by id. When full, the oldest
// result is evicted.
type ResultStore struct {
	mu      sync.Mutex
	max     int
	order   []string
	results map[string]*DecodeResponse
}

// NewResultStore returns a store holding at most max results; max <= 0
// selects DefaultStoreSize.
func NewResultStore(max int) *ResultStore {
	if max <= 0 {
		max = DefaultStoreSize
	}
	return &ResultStore{
		max:     max,
		results: make(map[string]*DecodeResponse),
	}
}

// Put stores resp under its id, evicting the oldest results over capacity.
func (s *ResultStore) Put(resp *DecodeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.results[resp.ID] = resp
	for len(s.results) > s.max && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.results, oldest)
	}
}

func (s *ResultStore) Get(id string) (*DecodeResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.results[id]
	return resp, ok
}

// Delete removes id and reports whether it was present.
func (s *ResultStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return false
	}
	delete(s.results, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}
