package norma

import (
	"context"
	"errors"
	"time"
)

// Esfera is the federative sphere configured for the legislative house.
type Esfera string

const (
	EsferaMunicipal Esfera = "M"
	EsferaEstadual  Esfera = "E"
	EsferaFederal   Esfera = "F"
)

// Name returns the literal used inside LexML URNs ("municipal", "estadual").
// Other spheres have no literal.
func (e Esfera) Name() string {
	switch e {
	case EsferaMunicipal:
		return "municipal"
	case EsferaEstadual:
		return "estadual"
	}
	return ""
}

// LexML type codes with special handling in URNs and epígrafes.
const (
	LexMLLeiOrganica      = "lei.organica"
	LexMLConstituicao     = "constituicao"
	LexMLResolucao        = "resolucao"
	LexMLRegimentoInterno = "regimento.interno"
)

// TipoNorma is the kind of a legal norm (lei, decreto, resolução...).
type TipoNorma struct {
	ID               int64  `json:"id"`
	Sigla            string `json:"sigla"`
	Descricao        string `json:"descricao"`
	EquivalenteLexML string `json:"equivalente_lexml"`
}

// Norma is a legal norm as stored by the legislative records system.
// This service never mutates it.
type Norma struct {
	ID              int64      `json:"id"`
	Numero          string     `json:"numero"`
	Ano             int        `json:"ano"`
	Data            time.Time  `json:"data"`
	DataVigencia    *time.Time `json:"data_vigencia,omitempty"`
	DataPublicacao  *time.Time `json:"data_publicacao,omitempty"`
	Tipo            TipoNorma  `json:"tipo"`
	Ementa          string     `json:"ementa"`
	Indexacao       string     `json:"indexacao,omitempty"`
	TextoIntegral   string     `json:"texto_integral,omitempty"` // attachment path, empty when absent
	EsferaFederacao string     `json:"esfera_federacao,omitempty"`
	Timestamp       time.Time  `json:"timestamp"` // last modified
}

// CasaLegislativa is the legislative house owning the norms.
type CasaLegislativa struct {
	Nome            string `json:"nome"`
	Sigla           string `json:"sigla"`
	Municipio       string `json:"municipio"`
	UF              string `json:"uf"`
	EnderecoWeb     string `json:"endereco_web"`
	Email           string `json:"email"`
	InformacaoGeral string `json:"informacao_geral,omitempty"`
}

// Publicador is a LexML publisher registration.
type Publicador struct {
	ID               int64  `json:"id"`
	IDPublicador     int    `json:"id_publicador"`
	Nome             string `json:"nome"`
	Email            string `json:"email,omitempty"`
	Sigla            string `json:"sigla,omitempty"`
	Tipo             string `json:"tipo,omitempty"`
	IDResponsavel    int    `json:"id_responsavel,omitempty"`
	NomeResponsavel  string `json:"nome_responsavel,omitempty"`
	EmailResponsavel string `json:"email_responsavel,omitempty"`
}

// Provedor is a LexML provider registration.
type Provedor struct {
	ID               int64  `json:"id"`
	IDProvedor       int    `json:"id_provedor"`
	Nome             string `json:"nome"`
	Sigla            string `json:"sigla"`
	Email            string `json:"email,omitempty"`
	Conteudo         string `json:"conteudo,omitempty"`
	IDResponsavel    int    `json:"id_responsavel,omitempty"`
	NomeResponsavel  string `json:"nome_responsavel,omitempty"`
	EmailResponsavel string `json:"email_responsavel,omitempty"`
	XML              string `json:"xml,omitempty"`
}

// Filter selects norms for a harvesting request. Zero values mean "no
// constraint", except Until which is always applied. Until and From are
// compared by calendar day (UTC) against Data.
type Filter struct {
	Until     time.Time
	From      *time.Time
	Numero    string
	Ano       int
	Esfera    string
	TipoID    int64
	TipoLexML string // matched against TipoNorma.EquivalenteLexML
	Offset    int
	Limit     int
}

// Matches reports whether n satisfies every constraint of f except the
// slice bounds.
func (f Filter) Matches(n Norma) bool {
	data := Day(n.Data)
	if data.After(Day(f.Until)) {
		return false
	}
	if f.From != nil && data.Before(Day(*f.From)) {
		return false
	}
	if f.Numero != "" && n.Numero != f.Numero {
		return false
	}
	if f.Ano != 0 && n.Ano != f.Ano {
		return false
	}
	if f.TipoLexML != "" && n.Tipo.EquivalenteLexML != f.TipoLexML {
		return false
	}
	if f.Esfera != "" && n.EsferaFederacao != f.Esfera {
		return false
	}
	if f.TipoID != 0 && n.Tipo.ID != f.TipoID {
		return false
	}
	return true
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Repository is the read-only view of the legislative records system.
type Repository interface {
	ListNormas(ctx context.Context, f Filter) ([]Norma, error)
	TiposNorma(ctx context.Context) ([]TipoNorma, error)
	// CasaLegislativa returns the first configured house.
	CasaLegislativa(ctx context.Context) (*CasaLegislativa, error)
	// EsferaFederacao returns the sphere from the first app config row.
	EsferaFederacao(ctx context.Context) (Esfera, error)
	// Publicador returns the first registered publisher, nil when none.
	Publicador(ctx context.Context) (*Publicador, error)
	Ping(ctx context.Context) error
}

// Registry manages LexML publisher/provider registrations.
type Registry interface {
	ListPublicadores(ctx context.Context) ([]Publicador, error)
	SavePublicador(ctx context.Context, p *Publicador) error
	ListProvedores(ctx context.Context) ([]Provedor, error)
	SaveProvedor(ctx context.Context, p *Provedor) error
}

// Store is implemented by every storage backend.
type Store interface {
	Repository
	Registry
	Close() error
}

var (
	ErrNotFound     = errors.New("norma: not found")
	ErrInvalidInput = errors.New("norma: invalid input")
	ErrConflict     = errors.New("norma: conflict")
)

// Validate checks the mandatory publisher fields.
func (p *Publicador) Validate() error {
	if p == nil || p.IDPublicador <= 0 || p.Nome == "" {
		return ErrInvalidInput
	}
	return nil
}

// Validate checks the mandatory provider fields.
func (p *Provedor) Validate() error {
	if p == nil || p.IDProvedor <= 0 || p.Nome == "" || p.Sigla == "" {
		return ErrInvalidInput
	}
	return nil
}
