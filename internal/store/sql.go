// Package store holds the database/sql implementation of norma.Store
// shared by the Postgres and SQLite backends. Backends differ only in the
// driver, the placeholder style and how the schema gets installed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sapl.leg.br/lexml/internal/norma"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders $1, $2... (Postgres).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders ?1, ?2... (SQLite).
func Question(n int) string { return "?" + strconv.Itoa(n) }

// Dialect is what differs between backends in generated SQL.
type Dialect struct {
	Bind Placeholder
	// Day renders a date column as a comparable "YYYY-MM-DD" value.
	Day func(col string) string
}

// dayLayout is how date bounds are bound. Date columns only hold days, so
// bounds are compared by calendar day.
const dayLayout = "2006-01-02"

var (
	Postgres = Dialect{Bind: Dollar, Day: func(col string) string { return col }}
	// SQLite keeps dates as text; date() folds "2021-06-15" and
	// "2021-06-15 00:00:00+00:00" to the same value.
	SQLite = Dialect{Bind: Question, Day: func(col string) string { return "date(" + col + ")" }}
)

// SQL implements norma.Store over database/sql.
type SQL struct {
	db     *sql.DB
	ph     Placeholder
	d      Dialect
	mapErr func(error) error
}

var _ norma.Store = (*SQL)(nil)

// Option configures SQL.
type Option func(*SQL)

// WithErrorMapper translates driver errors on writes, typically
// constraint violations into norma.ErrConflict.
func WithErrorMapper(fn func(error) error) Option {
	return func(s *SQL) {
		if fn != nil {
			s.mapErr = fn
		}
	}
}

// New wraps an open database.
func New(db *sql.DB, d Dialect, opts ...Option) *SQL {
	s := &SQL{db: db, ph: d.Bind, d: d, mapErr: func(err error) error { return err }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQL) DB() *sql.DB  { return s.db }
func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const normaColumns = `
	n.id, n.numero, n.ano, n.data, n.data_vigencia, n.data_publicacao,
	n.ementa, coalesce(n.indexacao, ''), coalesce(n.texto_integral, ''),
	coalesce(n.esfera_federacao, ''), n.timestamp,
	t.id, t.sigla, t.descricao, coalesce(t.equivalente_lexml, '')`

// NormaQuery builds the select for f. Rows come back in primary key order.
func NormaQuery(f norma.Filter, d Dialect) (string, []any) {
	var (
		where []string
		args  []any
		ph    = d.Bind
	)
	bind := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, ph(len(args))))
	}
	data := d.Day("n.data")
	bind(data+" <= %s", f.Until.UTC().Format(dayLayout))
	if f.From != nil {
		bind(data+" >= %s", f.From.UTC().Format(dayLayout))
	}
	if f.Numero != "" {
		bind("n.numero = %s", f.Numero)
	}
	if f.Ano != 0 {
		bind("n.ano = %s", f.Ano)
	}
	if f.Esfera != "" {
		bind("n.esfera_federacao = %s", f.Esfera)
	}
	if f.TipoID != 0 {
		bind("n.tipo_id = %s", f.TipoID)
	}
	if f.TipoLexML != "" {
		bind("t.equivalente_lexml = %s", f.TipoLexML)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	q := "select" + normaColumns + `
	from norma_juridica n
	join tipo_norma t on t.id = n.tipo_id
	where ` + strings.Join(where, " and ") + `
	order by n.id
	limit ` + ph(len(args)-1) + ` offset ` + ph(len(args))
	return q, args
}

func (s *SQL) ListNormas(ctx context.Context, f norma.Filter) ([]norma.Norma, error) {
	q, args := NormaQuery(f, s.d)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []norma.Norma
	for rows.Next() {
		var (
			n               norma.Norma
			vigencia, publi sql.NullTime
		)
		if err := rows.Scan(
			&n.ID, &n.Numero, &n.Ano, &n.Data, &vigencia, &publi,
			&n.Ementa, &n.Indexacao, &n.TextoIntegral,
			&n.EsferaFederacao, &n.Timestamp,
			&n.Tipo.ID, &n.Tipo.Sigla, &n.Tipo.Descricao, &n.Tipo.EquivalenteLexML,
		); err != nil {
			return nil, err
		}
		n.DataVigencia = nullTime(vigencia)
		n.DataPublicacao = nullTime(publi)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *SQL) TiposNorma(ctx context.Context) ([]norma.TipoNorma, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, sigla, descricao, coalesce(equivalente_lexml, '')
		from tipo_norma
		order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []norma.TipoNorma
	for rows.Next() {
		var t norma.TipoNorma
		if err := rows.Scan(&t.ID, &t.Sigla, &t.Descricao, &t.EquivalenteLexML); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *SQL) CasaLegislativa(ctx context.Context) (*norma.CasaLegislativa, error) {
	var c norma.CasaLegislativa
	err := s.db.QueryRowContext(ctx, `
		select nome, sigla, coalesce(municipio, ''), coalesce(uf, ''),
			coalesce(endereco_web, ''), coalesce(email, ''), coalesce(informacao_geral, '')
		from casa_legislativa
		order by id
		limit 1`).Scan(&c.Nome, &c.Sigla, &c.Municipio, &c.UF, &c.EnderecoWeb, &c.Email, &c.InformacaoGeral)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, norma.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQL) EsferaFederacao(ctx context.Context) (norma.Esfera, error) {
	var e string
	err := s.db.QueryRowContext(ctx, `
		select coalesce(esfera_federacao, '')
		from app_config
		order by id
		limit 1`).Scan(&e)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return norma.Esfera(e), nil
}

const publicadorColumns = `id, id_publicador, nome, coalesce(email, ''), coalesce(sigla, ''), coalesce(tipo, ''),
	coalesce(id_responsavel, 0), coalesce(nome_responsavel, ''), coalesce(email_responsavel, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanPublicador(row scanner) (norma.Publicador, error) {
	var p norma.Publicador
	err := row.Scan(&p.ID, &p.IDPublicador, &p.Nome, &p.Email, &p.Sigla, &p.Tipo,
		&p.IDResponsavel, &p.NomeResponsavel, &p.EmailResponsavel)
	return p, err
}

func (s *SQL) Publicador(ctx context.Context) (*norma.Publicador, error) {
	p, err := scanPublicador(s.db.QueryRowContext(ctx,
		`select `+publicadorColumns+` from lexml_publicador order by id limit 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQL) ListPublicadores(ctx context.Context) ([]norma.Publicador, error) {
	rows, err := s.db.QueryContext(ctx, `select `+publicadorColumns+` from lexml_publicador order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []norma.Publicador
	for rows.Next() {
		p, err := scanPublicador(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQL) SavePublicador(ctx context.Context, p *norma.Publicador) error {
	if err := p.Validate(); err != nil {
		return err
	}
	args := []any{p.IDPublicador, p.Nome, p.Email, p.Sigla, p.Tipo, p.IDResponsavel, p.NomeResponsavel, p.EmailResponsavel}
	if p.ID == 0 {
		q := fmt.Sprintf(`
			insert into lexml_publicador(id_publicador, nome, email, sigla, tipo, id_responsavel, nome_responsavel, email_responsavel)
			values (%s) returning id`, s.binds(1, len(args)))
		return s.mapErr(s.db.QueryRowContext(ctx, q, args...).Scan(&p.ID))
	}
	q := fmt.Sprintf(`
		update lexml_publicador
		set id_publicador=%s, nome=%s, email=%s, sigla=%s, tipo=%s, id_responsavel=%s, nome_responsavel=%s, email_responsavel=%s
		where id=%s`, s.list(1, len(args)+1)...)
	return s.update(ctx, q, append(args, p.ID)...)
}

const provedorColumns = `id, id_provedor, nome, sigla, coalesce(email, ''), coalesce(conteudo, ''),
	coalesce(id_responsavel, 0), coalesce(nome_responsavel, ''), coalesce(email_responsavel, ''), coalesce(xml, '')`

func (s *SQL) ListProvedores(ctx context.Context) ([]norma.Provedor, error) {
	rows, err := s.db.QueryContext(ctx, `select `+provedorColumns+` from lexml_provedor order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []norma.Provedor
	for rows.Next() {
		var p norma.Provedor
		if err := rows.Scan(&p.ID, &p.IDProvedor, &p.Nome, &p.Sigla, &p.Email, &p.Conteudo,
			&p.IDResponsavel, &p.NomeResponsavel, &p.EmailResponsavel, &p.XML); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQL) SaveProvedor(ctx context.Context, p *norma.Provedor) error {
	if err := p.Validate(); err != nil {
		return err
	}
	args := []any{p.IDProvedor, p.Nome, p.Sigla, p.Email, p.Conteudo, p.IDResponsavel, p.NomeResponsavel, p.EmailResponsavel, p.XML}
	if p.ID == 0 {
		q := fmt.Sprintf(`
			insert into lexml_provedor(id_provedor, nome, sigla, email, conteudo, id_responsavel, nome_responsavel, email_responsavel, xml)
			values (%s) returning id`, s.binds(1, len(args)))
		return s.mapErr(s.db.QueryRowContext(ctx, q, args...).Scan(&p.ID))
	}
	q := fmt.Sprintf(`
		update lexml_provedor
		set id_provedor=%s, nome=%s, sigla=%s, email=%s, conteudo=%s, id_responsavel=%s, nome_responsavel=%s, email_responsavel=%s, xml=%s
		where id=%s`, s.list(1, len(args)+1)...)
	return s.update(ctx, q, append(args, p.ID)...)
}

func (s *SQL) update(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return s.mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return norma.ErrNotFound
	}
	return nil
}

// list returns placeholders from..to inclusive, as fmt arguments.
func (s *SQL) list(from, to int) []any {
	out := make([]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, s.ph(i))
	}
	return out
}

func (s *SQL) binds(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for _, p := range s.list(from, to) {
		parts = append(parts, p.(string))
	}
	return strings.Join(parts, ", ")
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
