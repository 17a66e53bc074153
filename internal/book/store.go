package book

import "fmt"

// Market is the immutable identity of one binary prediction market: the
// question id and its YES/NO outcome token ids. Re-registering a market id
// replaces the old entry wholesale.
type Market struct {
	ID       string
	Question string
	YesAsset string
	NoAsset  string
	EndTime  int64 // resolution time, unix nanos; 0 when unknown
	Active   bool
}

// Store owns the current book per outcome token. Registration happens at
// discovery time on the setup path; lookups and update application run on
// the decision thread and never allocate. Not safe for concurrent use.
type Store struct {
	depth   int
	markets map[string]Market
	books   map[string]*Book
	byAsset map[string]string // asset id -> market id
}

func NewStore(depth int) *Store {
	if depth <= 0 || depth > MaxDepth {
		depth = DefaultDepth
	}
	return &Store{
		depth:   depth,
		markets: make(map[string]Market),
		books:   make(map[string]*Book),
		byAsset: make(map[string]string),
	}
}

// Register adds a market and allocates books for both outcome tokens.
func (s *Store) Register(m Market) error {
	if m.ID == "" || m.YesAsset == "" || m.NoAsset == "" {
		return fmt.Errorf("market %q missing token ids", m.ID)
	}
	if m.YesAsset == m.NoAsset {
		return fmt.Errorf("market %q has identical outcome tokens", m.ID)
	}
	if old, ok := s.markets[m.ID]; ok {
		delete(s.books, old.YesAsset)
		delete(s.books, old.NoAsset)
		delete(s.byAsset, old.YesAsset)
		delete(s.byAsset, old.NoAsset)
	}
	s.markets[m.ID] = m
	s.books[m.YesAsset] = New(m.YesAsset, s.depth)
	s.books[m.NoAsset] = New(m.NoAsset, s.depth)
	s.byAsset[m.YesAsset] = m.ID
	s.byAsset[m.NoAsset] = m.ID
	return nil
}

// Book returns the current book for an outcome token.
func (s *Store) Book(asset string) (*Book, bool) {
	b, ok := s.books[asset]
	return b, ok
}

// Market returns market metadata by id.
func (s *Store) Market(id string) (Market, bool) {
	m, ok := s.markets[id]
	return m, ok
}

// MarketForAsset maps an outcome token back to its market.
func (s *Store) MarketForAsset(asset string) (Market, bool) {
	id, ok := s.byAsset[asset]
	if !ok {
		return Market{}, false
	}
	return s.markets[id], true
}

// Pair returns both books for a market.
func (s *Store) Pair(marketID string) (yes, no *Book, ok bool) {
	m, found := s.markets[marketID]
	if !found {
		return nil, nil, false
	}
	yes, no = s.books[m.YesAsset], s.books[m.NoAsset]
	if yes == nil || no == nil {
		return nil, nil, false
	}
	return yes, no, true
}

// Markets appends all registered markets to dst and returns it. Setup-path
// helper; the decision loop never calls it.
func (s *Store) Markets(dst []Market) []Market {
	for _, m := range s.markets {
		dst = append(dst, m)
	}
	return dst
}

func (s *Store) Len() int { return len(s.markets) }
