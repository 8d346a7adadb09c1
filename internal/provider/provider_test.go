package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/oai"
)

var (
	lei = norma.TipoNorma{ID: 1, Sigla: "LO", Descricao: "Lei Ordinária", EquivalenteLexML: "lei"}
	res = norma.TipoNorma{ID: 2, Sigla: "RES", Descricao: "Resolução", EquivalenteLexML: norma.LexMLResolucao}

	brt = time.FixedZone("BRT", -3*60*60)
)

func casa() *norma.CasaLegislativa {
	return &norma.CasaLegislativa{
		Nome:            "Câmara Municipal de Cocalzinho de Goiás",
		Sigla:           "CMCG",
		Municipio:       "Cocalzinho de Goiás",
		UF:              "GO",
		EnderecoWeb:     "www.cocalzinho.go.leg.br",
		Email:           "contato@cocalzinho.go.leg.br",
		InformacaoGeral: "Normas jurídicas municipais",
	}
}

// seed stores twelve leis (ids 1-12, enacted 2020-01-<id>) and one
// resolução (id 13, 2020-01-20).
func seed(t *testing.T, withPublicador bool) *norma.InMemory {
	t.Helper()
	s := norma.NewInMemory(casa(), norma.EsferaMunicipal)
	for i := 1; i <= 12; i++ {
		s.AddNorma(norma.Norma{
			ID:              int64(i),
			Numero:          strconv.Itoa(i),
			Ano:             2020,
			Data:            time.Date(2020, 1, i, 0, 0, 0, 0, time.UTC),
			Tipo:            lei,
			Ementa:          "Ementa " + strconv.Itoa(i),
			EsferaFederacao: string(norma.EsferaMunicipal),
			Timestamp:       time.Date(2020, 2, i, 10, 30, 0, 0, brt),
		})
	}
	s.AddNorma(norma.Norma{
		ID:              13,
		Numero:          "4",
		Ano:             2020,
		Data:            time.Date(2020, 1, 20, 0, 0, 0, 0, time.UTC),
		Tipo:            res,
		Ementa:          "Regimento",
		EsferaFederacao: string(norma.EsferaMunicipal),
		Timestamp:       time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if withPublicador {
		if err := s.SavePublicador(context.Background(), &norma.Publicador{IDPublicador: 77, Nome: "CMCG"}); err != nil {
			t.Fatalf("save publicador: %v", err)
		}
	}
	return s
}

func newProvider(t *testing.T, repo norma.Repository) *Provider {
	t.Helper()
	cfg, err := ConfigFromCasa(casa(), "https://sapl.cocalzinho.go.leg.br/lexml?verb=ListRecords", 10)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	p := New(repo, casa(), cfg)
	p.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func drain(t *testing.T, s *RecordStream) []Record {
	t.Helper()
	var out []Record
	for s.Next() {
		out = append(out, s.Record())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream: %v", err)
	}
	return out
}

func ids(records []Record) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.ID
	}
	return strings.Join(parts, ",")
}

func TestQueryPaginationClamp(t *testing.T) {
	p := newProvider(t, seed(t, true))
	ctx := context.Background()

	clamped, err := p.Query(ctx, Query{Cursor: -5, BatchSize: -1})
	if err != nil {
		t.Fatal(err)
	}
	plain, err := p.Query(ctx, Query{Cursor: 0, BatchSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	a, b := drain(t, clamped), drain(t, plain)
	if len(a) != 10 {
		t.Fatalf("expected default batch of 10, got %d", len(a))
	}
	if ids(a) != ids(b) {
		t.Fatalf("clamped query differs:\n%s\n%s", ids(a), ids(b))
	}
}

func TestQueryUntilNeverInFuture(t *testing.T) {
	p := newProvider(t, seed(t, true))
	p.now = func() time.Time { return time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC) }
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, until := range []*time.Time{nil, &future} {
		s, err := p.Query(context.Background(), Query{Until: until, BatchSize: 50})
		if err != nil {
			t.Fatal(err)
		}
		if got := len(drain(t, s)); got != 5 {
			t.Fatalf("until=%v: expected 5 norms up to now, got %d", until, got)
		}
	}

	past := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	s, err := p.Query(context.Background(), Query{Until: &past, BatchSize: 50})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(drain(t, s)); got != 2 {
		t.Fatalf("explicit until: expected 2, got %d", got)
	}
}

func TestQueryRecordShape(t *testing.T) {
	p := newProvider(t, seed(t, true))
	s, err := p.Query(context.Background(), Query{BatchSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	recs := drain(t, s)
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.ID != "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;1" {
		t.Fatalf("unexpected identifier %q", rec.ID)
	}
	want := time.Date(2020, 2, 1, 10, 30, 0, 0, time.UTC)
	if !rec.WhenModified.Equal(want) {
		t.Fatalf("timestamp must keep wall clock: got %v want %v", rec.WhenModified, want)
	}
	if rec.Deleted {
		t.Fatal("records are never deleted")
	}
	body := string(rec.Metadata)
	for _, frag := range []string{
		"urn:lex:br;go;cocalzinho.goiás:municipal:lei:2020-01-01;1",
		`idPublicador="77"`,
		"https://sapl.cocalzinho.go.leg.br/norma/1",
		"Lei Ordinária n° 1, de 01 de Janeiro de 2020",
	} {
		if !strings.Contains(body, frag) {
			t.Fatalf("metadata missing %q:\n%s", frag, body)
		}
	}
}

func TestQuerySkipsWithoutPublicador(t *testing.T) {
	p := newProvider(t, seed(t, false))
	s, err := p.Query(context.Background(), Query{})
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, s); len(got) != 0 {
		t.Fatalf("expected no records without publicador, got %d", len(got))
	}
}

func TestQuerySetAndIdentifier(t *testing.T) {
	p := newProvider(t, seed(t, true))
	ctx := context.Background()

	s, err := p.Query(ctx, Query{Set: "tipo2"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(drain(t, s)); got != "oai:cmcg.cocalzinho.go.leg.br:sapl/resolucao;2020;4" {
		t.Fatalf("set filter returned %s", got)
	}

	s, err = p.Query(ctx, Query{Set: "tipoX"})
	if err != nil {
		t.Fatal(err)
	}
	if got := drain(t, s); len(got) != 0 {
		t.Fatalf("malformed set must match nothing, got %d", len(got))
	}

	s, err = p.Query(ctx, Query{Identifier: "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;4"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(drain(t, s)); got != "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;4" {
		t.Fatalf("number 4 is shared by a lei and a resolução, only the lei matches: %s", got)
	}
}

func TestSplitIdentifier(t *testing.T) {
	cases := []struct {
		in     string
		tipo   string
		ano    int
		numero string
	}{
		{"oai:cmcg.go.leg.br:sapl/lei;2020;12", "lei", 2020, "12"},
		{"oai:cmcg.go.leg.br:sapl/lei.complementar;2001;3-A", "lei.complementar", 2001, "3-A"},
		{"oai:cmcg.go.leg.br:sapl/lei;abc;12", "", 0, "12"},
		{"oai:15", "", 0, "oai:15"},
		{"a/b/33", "", 0, "33"},
		{"7", "", 0, "7"},
	}
	for _, tc := range cases {
		tipo, ano, numero := splitIdentifier(tc.in)
		if tipo != tc.tipo || ano != tc.ano || numero != tc.numero {
			t.Fatalf("splitIdentifier(%q)=(%q, %d, %q), want (%q, %d, %q)",
				tc.in, tipo, ano, numero, tc.tipo, tc.ano, tc.numero)
		}
	}
}

func TestFormatGate(t *testing.T) {
	p := newProvider(t, seed(t, true))
	ctx := context.Background()

	cur, err := p.ListRecords(ctx, oai.ListArgs{MetadataPrefix: "oai_dc", BatchSize: 10})
	var oaiErr *oai.Error
	if !errors.As(err, &oaiErr) || oaiErr.Code != oai.CodeCannotDisseminateFormat {
		t.Fatalf("expected cannotDisseminateFormat, got %v", err)
	}
	if cur != nil {
		t.Fatal("no records may be produced for an unsupported format")
	}

	_, err = p.GetRecord(ctx, "oai_dc", "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;1")
	if !errors.As(err, &oaiErr) || oaiErr.Code != oai.CodeCannotDisseminateFormat {
		t.Fatalf("GetRecord: expected cannotDisseminateFormat, got %v", err)
	}
}

func TestGetRecord(t *testing.T) {
	p := newProvider(t, seed(t, true))
	ctx := context.Background()

	id := "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;4"
	rec, err := p.GetRecord(ctx, "oai_lexml", id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Header.Identifier != id {
		t.Fatalf("exact identifier should win, got %s", rec.Header.Identifier)
	}

	_, err = p.GetRecord(ctx, "oai_lexml", "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;999")
	var oaiErr *oai.Error
	if !errors.As(err, &oaiErr) || oaiErr.Code != oai.CodeIDDoesNotExist {
		t.Fatalf("expected idDoesNotExist, got %v", err)
	}
}

func TestGetRecordAmongManySameNumber(t *testing.T) {
	s := norma.NewInMemory(casa(), norma.EsferaMunicipal)
	for ano := 2001; ano <= 2012; ano++ {
		s.AddNorma(norma.Norma{
			ID:              int64(ano),
			Numero:          "1",
			Ano:             ano,
			Data:            time.Date(ano, 3, 1, 0, 0, 0, 0, time.UTC),
			Tipo:            lei,
			Ementa:          "Lei 1/" + strconv.Itoa(ano),
			EsferaFederacao: string(norma.EsferaMunicipal),
			Timestamp:       time.Date(ano, 3, 2, 0, 0, 0, 0, time.UTC),
		})
	}
	if err := s.SavePublicador(context.Background(), &norma.Publicador{IDPublicador: 77, Nome: "CMCG"}); err != nil {
		t.Fatal(err)
	}
	p := newProvider(t, s)
	p.now = func() time.Time { return time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, id := range []string{
		"oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2012;1",
		"oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2001;1",
	} {
		rec, err := p.GetRecord(ctx, "oai_lexml", id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if rec.Header.Identifier != id {
			t.Fatalf("asked for %s, got %s", id, rec.Header.Identifier)
		}
	}

	for _, id := range []string{
		"oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2013;1",
		"oai:cmcg.cocalzinho.go.leg.br:sapl/resolucao;2012;1",
		"oai:outra.casa.leg.br:sapl/lei;2012;1",
		"oai:1",
	} {
		_, err := p.GetRecord(ctx, "oai_lexml", id)
		var oaiErr *oai.Error
		if !errors.As(err, &oaiErr) || oaiErr.Code != oai.CodeIDDoesNotExist {
			t.Fatalf("%s: expected idDoesNotExist, got %v", id, err)
		}
	}
}

func TestIdentify(t *testing.T) {
	p := newProvider(t, seed(t, true))
	id, err := p.Identify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id.RepositoryName != "Câmara Municipal de Cocalzinho de Goiás" {
		t.Fatalf("unexpected name %q", id.RepositoryName)
	}
	if id.BaseURL != "https://sapl.cocalzinho.go.leg.br" {
		t.Fatalf("unexpected base url %q", id.BaseURL)
	}
	if !id.EarliestDatestamp.Equal(time.Date(2001, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected earliest datestamp %v", id.EarliestDatestamp)
	}
	if id.DeletedRecord != oai.DeletedTransient || id.Granularity != oai.GranularitySeconds {
		t.Fatalf("unexpected policy %s/%s", id.DeletedRecord, id.Granularity)
	}
	if len(id.AdminEmails) != 1 || len(id.Descriptions) != 1 {
		t.Fatalf("expected email and description, got %#v", id)
	}
}

func TestListSetsAndFormats(t *testing.T) {
	p := newProvider(t, seed(t, true))
	ctx := context.Background()

	sets, err := p.ListSets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 || sets[0].Spec != "tipo1" || sets[1].Name != "Resolução" {
		t.Fatalf("unexpected sets %#v", sets)
	}

	formats, err := p.ListMetadataFormats(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(formats) != 1 || formats[0].Prefix != "oai_lexml" {
		t.Fatalf("unexpected formats %#v", formats)
	}

	_, err = p.ListMetadataFormats(ctx, "oai:nowhere/lei;1;999")
	var oaiErr *oai.Error
	if !errors.As(err, &oaiErr) || oaiErr.Code != oai.CodeIDDoesNotExist {
		t.Fatalf("expected idDoesNotExist, got %v", err)
	}
}

func TestConfigFromCasa(t *testing.T) {
	cfg, err := ConfigFromCasa(casa(), "http://localhost:8080/lexml/?verb=Identify", 0)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Fatalf("unexpected batch %d", cfg.BatchSize)
	}
	if !cfg.Supports("oai_lexml") || cfg.Supports("oai_dc") {
		t.Fatal("only oai_lexml is supported")
	}
	if _, err := ConfigFromCasa(casa(), "not a url", 10); !errors.Is(err, norma.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := ConfigFromCasa(nil, "http://x", 10); !errors.Is(err, norma.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServedThroughEngine(t *testing.T) {
	p := newProvider(t, seed(t, true))
	h := oai.NewHandler(p, 5)

	req := httptest.NewRequest(http.MethodGet, "/lexml?verb=ListRecords&metadataPrefix=oai_lexml&set=tipo1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	body := rr.Body.String()
	if got := strings.Count(body, "<record>"); got != 5 {
		t.Fatalf("expected 5 records, got %d:\n%s", got, body)
	}
	if !strings.Contains(body, "<resumptionToken") {
		t.Fatalf("expected a resumption token")
	}
	if !strings.Contains(body, "<datestamp>2020-02-01T10:30:00Z</datestamp>") {
		t.Fatalf("datestamp not rendered naive:\n%s", body)
	}
}
