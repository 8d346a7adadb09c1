// Package provider adapts the norm repository to the OAI-PMH engine. It
// translates harvesting requests into repository filters and turns each
// matched norm into an OAI record carrying LexML metadata.
package provider

import (
	"fmt"
	"net/url"
	"strings"

	"sapl.leg.br/lexml/internal/lexml"
	"sapl.leg.br/lexml/internal/norma"
)

const DefaultBatchSize = 10

// Config holds the repository description served by Identify and the
// limits applied to list requests.
type Config struct {
	Title            string
	BaseURL          string
	Email            string
	Description      string
	BatchSize        int
	MetadataPrefixes []string
}

// ConfigFromCasa derives the per-request configuration from the
// legislative house and the URL the harvester called. BaseURL keeps only
// scheme and host.
func ConfigFromCasa(casa *norma.CasaLegislativa, rawURL string, batchSize int) (Config, error) {
	if casa == nil {
		return Config{}, fmt.Errorf("provider: casa legislativa: %w", norma.ErrNotFound)
	}
	base, err := baseURL(rawURL)
	if err != nil {
		return Config{}, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return Config{
		Title:            casa.Nome,
		BaseURL:          base,
		Email:            casa.Email,
		Description:      casa.InformacaoGeral,
		BatchSize:        batchSize,
		MetadataPrefixes: []string{lexml.MetadataName},
	}, nil
}

// Supports reports whether prefix is one of the configured formats.
func (c Config) Supports(prefix string) bool {
	for _, p := range c.prefixes() {
		if p == prefix {
			return true
		}
	}
	return false
}

func (c Config) prefixes() []string {
	if len(c.MetadataPrefixes) == 0 {
		return []string{lexml.MetadataName}
	}
	return c.MetadataPrefixes
}

func baseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("provider: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("provider: base url %q: %w", raw, norma.ErrInvalidInput)
	}
	return u.Scheme + "://" + u.Host, nil
}
