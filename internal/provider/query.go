package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sapl.leg.br/lexml/internal/lexml"
	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/obs"
)

const setPrefix = "tipo"

// Query is a harvesting request in repository terms.
type Query struct {
	From       *time.Time
	Until      *time.Time
	Cursor     int
	BatchSize  int
	Identifier string // OAI identifier, matched by its tipo, ano and number
	Set        string // setSpec, "tipo<id>"
}

// Record is one norm ready for the OAI layer.
type Record struct {
	ID           string
	WhenModified time.Time
	Deleted      bool
	Metadata     []byte
}

// RecordStream is a forward-only pass over one repository slice. Records
// are built as the stream advances; it cannot be rewound.
type RecordStream struct {
	normas []norma.Norma
	build  func(*norma.Norma) (Record, bool, error)
	pos    int
	cur    Record
	err    error
}

// Next advances to the next record, skipping norms without metadata.
func (s *RecordStream) Next() bool {
	if s == nil || s.err != nil {
		return false
	}
	for s.pos < len(s.normas) {
		n := &s.normas[s.pos]
		s.pos++
		rec, ok, err := s.build(n)
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			s.cur = rec
			return true
		}
	}
	return false
}

func (s *RecordStream) Record() Record { return s.cur }
func (s *RecordStream) Err() error     { return s.err }

// Query runs q against the repository. The federative sphere and the
// publisher are read once per call.
func (p *Provider) Query(ctx context.Context, q Query) (*RecordStream, error) {
	f, ok := p.filter(q)
	if !ok {
		return &RecordStream{}, nil
	}
	esfera, err := p.repo.EsferaFederacao(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: esfera: %w", err)
	}
	f.Esfera = string(esfera)

	pub, err := p.repo.Publicador(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: publicador: %w", err)
	}
	normas, err := p.repo.ListNormas(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("provider: list normas: %w", err)
	}
	build := func(n *norma.Norma) (Record, bool, error) {
		return p.record(n, esfera, pub)
	}
	return &RecordStream{normas: normas, build: build}, nil
}

// filter clamps q into a repository filter. ok is false when the set
// cannot match any norm.
func (p *Provider) filter(q Query) (norma.Filter, bool) {
	now := p.now()
	f := norma.Filter{
		Until:  now,
		From:   q.From,
		Offset: q.Cursor,
		Limit:  q.BatchSize,
	}
	if q.Until != nil && !q.Until.After(now) {
		f.Until = *q.Until
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultBatchSize
	}
	if q.Identifier != "" {
		tipo, ano, numero := splitIdentifier(q.Identifier)
		f.TipoLexML, f.Ano, f.Numero = tipo, ano, numero
		// All norms sharing the identifier's parts, not one page of them.
		f.Offset, f.Limit = 0, 0
	}
	if q.Set != "" {
		id, ok := tipoFromSet(q.Set)
		if !ok {
			return f, false
		}
		f.TipoID = id
	}
	return f, true
}

func (p *Provider) record(n *norma.Norma, esfera norma.Esfera, pub *norma.Publicador) (Record, bool, error) {
	urn := lexml.URN(n, p.casa, esfera)
	meta, err := lexml.RenderMetadata(urn, n, p.casa, pub, p.cfg.BaseURL)
	if err != nil {
		return Record{}, false, fmt.Errorf("provider: render norma %d: %w", n.ID, err)
	}
	if meta == nil {
		obs.RecordSkipped()
		obs.LogEvent("warn", "lexml_record_skipped", map[string]any{
			"norma_id": n.ID,
			"reason":   "no publicador registered",
		})
		return Record{}, false, nil
	}
	// TODO: drive Deleted from a soft-delete column once norma_juridica carries one.
	return Record{
		ID:           lexml.OAIIdentifier(lexml.LocalIdentifier(n, p.casa)),
		WhenModified: naive(n.Timestamp),
		Deleted:      false,
		Metadata:     meta,
	}, true, nil
}

// splitIdentifier decodes the last "/" segment of an OAI identifier as
// "<tipo>;<ano>;<numero>". Identifiers of another shape only yield a
// number: the last ";" field of that segment.
func splitIdentifier(id string) (tipo string, ano int, numero string) {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	parts := strings.Split(id, ";")
	numero = parts[len(parts)-1]
	if len(parts) != 3 {
		return "", 0, numero
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil || y <= 0 {
		return "", 0, numero
	}
	return parts[0], y, numero
}

func tipoFromSet(spec string) (int64, bool) {
	if len(spec) <= len(setPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(spec[len(setPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// naive keeps the wall clock reading and drops the zone.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
