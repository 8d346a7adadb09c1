package norma

import (
	"context"
	"sort"
	"sync"
)

// InMemory implements Store with in-process concurrency safety.
// Used by tests and by the "memory" database driver for demos.
type InMemory struct {
	mu      sync.RWMutex
	normas  []Norma
	tipos   map[int64]TipoNorma
	casa    *CasaLegislativa
	esfera  Esfera
	pubs    []Publicador
	provs   []Provedor
	nextPub int64
	nextPrv int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a store for the given house and sphere.
func NewInMemory(casa *CasaLegislativa, esfera Esfera) *InMemory {
	return &InMemory{
		casa:   casa,
		esfera: esfera,
		tipos:  make(map[int64]TipoNorma),
	}
}

// AddNorma inserts or replaces a norm by ID.
func (s *InMemory) AddNorma(n Norma) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipos[n.Tipo.ID] = n.Tipo
	for i := range s.normas {
		if s.normas[i].ID == n.ID {
			s.normas[i] = n
			return
		}
	}
	s.normas = append(s.normas, n)
	sort.Slice(s.normas, func(i, j int) bool { return s.normas[i].ID < s.normas[j].ID })
}

func (s *InMemory) ListNormas(ctx context.Context, f Filter) ([]Norma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Norma
	for _, n := range s.normas {
		if f.Matches(n) {
			matched = append(matched, n)
		}
	}
	if f.Offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	out := make([]Norma, end-f.Offset)
	copy(out, matched[f.Offset:end])
	return out, nil
}

func (s *InMemory) TiposNorma(ctx context.Context) ([]TipoNorma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TipoNorma, 0, len(s.tipos))
	for _, t := range s.tipos {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CasaLegislativa(ctx context.Context) (*CasaLegislativa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.casa == nil {
		return nil, ErrNotFound
	}
	c := *s.casa
	return &c, nil
}

func (s *InMemory) EsferaFederacao(ctx context.Context) (Esfera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.esfera, nil
}

func (s *InMemory) Publicador(ctx context.Context) (*Publicador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.pubs) == 0 {
		return nil, nil
	}
	p := s.pubs[0]
	return &p, nil
}

func (s *InMemory) Ping(ctx context.Context) error { return nil }

func (s *InMemory) ListPublicadores(ctx context.Context) ([]Publicador, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Publicador(nil), s.pubs...), nil
}

func (s *InMemory) SavePublicador(ctx context.Context, p *Publicador) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.pubs {
		if other.IDPublicador == p.IDPublicador && other.ID != p.ID {
			return ErrConflict
		}
	}
	if p.ID == 0 {
		s.nextPub++
		p.ID = s.nextPub
		s.pubs = append(s.pubs, *p)
		return nil
	}
	for i := range s.pubs {
		if s.pubs[i].ID == p.ID {
			s.pubs[i] = *p
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemory) ListProvedores(ctx context.Context) ([]Provedor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Provedor(nil), s.provs...), nil
}

func (s *InMemory) SaveProvedor(ctx context.Context, p *Provedor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.provs {
		if other.IDProvedor == p.IDProvedor && other.ID != p.ID {
			return ErrConflict
		}
	}
	if p.ID == 0 {
		s.nextPrv++
		p.ID = s.nextPrv
		s.provs = append(s.provs, *p)
		return nil
	}
	for i := range s.provs {
		if s.provs[i].ID == p.ID {
			s.provs[i] = *p
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemory) Close() error { return nil }
