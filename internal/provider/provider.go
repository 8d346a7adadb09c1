package provider

import (
	"context"
	"fmt"
	"time"

	"sapl.leg.br/lexml/internal/lexml"
	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/oai"
)

// EarliestDatestamp is advertised by Identify.
var EarliestDatestamp = time.Date(2001, 1, 1, 10, 0, 0, 0, time.UTC)

// Provider serves one legislative house's norms over OAI-PMH.
type Provider struct {
	repo norma.Repository
	casa *norma.CasaLegislativa
	cfg  Config
	now  func() time.Time
}

var _ oai.Server = (*Provider)(nil)

// New builds a provider. casa is used for identifiers, URNs and
// epígrafes; cfg usually comes from ConfigFromCasa.
func New(repo norma.Repository, casa *norma.CasaLegislativa, cfg Config) *Provider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Provider{repo: repo, casa: casa, cfg: cfg, now: time.Now}
}

// Config returns the configuration the provider was built with.
func (p *Provider) Config() Config { return p.cfg }

func (p *Provider) Identify(ctx context.Context) (*oai.Identity, error) {
	id := &oai.Identity{
		RepositoryName:    p.cfg.Title,
		BaseURL:           p.cfg.BaseURL,
		EarliestDatestamp: EarliestDatestamp,
		DeletedRecord:     oai.DeletedTransient,
		Granularity:       oai.GranularitySeconds,
		Compression:       []string{"identity"},
	}
	if p.cfg.Email != "" {
		id.AdminEmails = []string{p.cfg.Email}
	}
	if p.cfg.Description != "" {
		id.Descriptions = []string{p.cfg.Description}
	}
	return id, nil
}

func (p *Provider) ListMetadataFormats(ctx context.Context, identifier string) ([]oai.Format, error) {
	if identifier != "" {
		rec, err := p.lookup(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, oai.ErrIDDoesNotExist(identifier)
		}
	}
	var formats []oai.Format
	for _, prefix := range p.cfg.prefixes() {
		if prefix == lexml.MetadataName {
			formats = append(formats, oai.Format{
				Prefix:    lexml.MetadataName,
				Schema:    lexml.SchemaURL,
				Namespace: lexml.Namespace,
			})
		}
	}
	return formats, nil
}

// ListSets exposes one set per norm type.
func (p *Provider) ListSets(ctx context.Context) ([]oai.Set, error) {
	tipos, err := p.repo.TiposNorma(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: tipos: %w", err)
	}
	sets := make([]oai.Set, 0, len(tipos))
	for _, t := range tipos {
		sets = append(sets, oai.Set{Spec: fmt.Sprintf("%s%d", setPrefix, t.ID), Name: t.Descricao})
	}
	return sets, nil
}

func (p *Provider) ListRecords(ctx context.Context, args oai.ListArgs) (oai.Cursor, error) {
	if !p.cfg.Supports(args.MetadataPrefix) {
		return nil, oai.ErrCannotDisseminateFormat(args.MetadataPrefix)
	}
	stream, err := p.Query(ctx, Query{
		From:      args.From,
		Until:     args.Until,
		Cursor:    args.Cursor,
		BatchSize: args.BatchSize,
		Set:       args.Set,
	})
	if err != nil {
		return nil, err
	}
	return &cursor{stream: stream}, nil
}

func (p *Provider) ListIdentifiers(ctx context.Context, args oai.ListArgs) (oai.Cursor, error) {
	return p.ListRecords(ctx, args)
}

// GetRecord returns the record whose identifier equals the requested one.
func (p *Provider) GetRecord(ctx context.Context, metadataPrefix, identifier string) (*oai.Record, error) {
	if !p.cfg.Supports(metadataPrefix) {
		return nil, oai.ErrCannotDisseminateFormat(metadataPrefix)
	}
	rec, err := p.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, oai.ErrIDDoesNotExist(identifier)
	}
	out := toOAI(*rec)
	return &out, nil
}

func (p *Provider) lookup(ctx context.Context, identifier string) (*Record, error) {
	stream, err := p.Query(ctx, Query{Identifier: identifier})
	if err != nil {
		return nil, err
	}
	for stream.Next() {
		if rec := stream.Record(); rec.ID == identifier {
			return &rec, nil
		}
	}
	return nil, stream.Err()
}

type cursor struct {
	stream *RecordStream
}

func (c *cursor) Next() bool         { return c.stream.Next() }
func (c *cursor) Record() oai.Record { return toOAI(c.stream.Record()) }
func (c *cursor) Err() error         { return c.stream.Err() }

func toOAI(r Record) oai.Record {
	return oai.Record{
		Header: oai.Header{
			Identifier: r.ID,
			Datestamp:  r.WhenModified,
			Deleted:    r.Deleted,
		},
		Metadata: r.Metadata,
	}
}
