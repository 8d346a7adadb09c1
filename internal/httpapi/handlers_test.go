package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"sapl.leg.br/lexml/internal/auth"
	"sapl.leg.br/lexml/internal/norma"
)

const (
	adminUser     = "admin"
	adminPassword = "s3cret"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *norma.InMemory
	t       *testing.T
}

func seedStore(t *testing.T, normas int) *norma.InMemory {
	t.Helper()
	s := norma.NewInMemory(&norma.CasaLegislativa{
		Nome:        "Câmara Municipal de Cocalzinho de Goiás",
		Sigla:       "CMCG",
		Municipio:   "Cocalzinho de Goiás",
		UF:          "GO",
		EnderecoWeb: "www.cocalzinho.go.leg.br",
		Email:       "contato@cocalzinho.go.leg.br",
	}, norma.EsferaMunicipal)
	lei := norma.TipoNorma{ID: 1, Sigla: "LO", Descricao: "Lei Ordinária", EquivalenteLexML: "lei"}
	for i := 1; i <= normas; i++ {
		s.AddNorma(norma.Norma{
			ID:              int64(i),
			Numero:          strconv.Itoa(i),
			Ano:             2020,
			Data:            time.Date(2020, 1, i, 0, 0, 0, 0, time.UTC),
			Tipo:            lei,
			Ementa:          "Ementa " + strconv.Itoa(i),
			EsferaFederacao: string(norma.EsferaMunicipal),
			Timestamp:       time.Date(2020, 2, i, 10, 0, 0, 0, time.UTC),
		})
	}
	if err := s.SavePublicador(context.Background(), &norma.Publicador{IDPublicador: 77, Nome: "CMCG"}); err != nil {
		t.Fatalf("save publicador: %v", err)
	}
	return s
}

func newTestAPI(t *testing.T, store norma.Store, opts ...Option) *apiClient {
	t.Helper()

	t.Setenv("SAPL_LEXML_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	opts = append([]Option{
		WithCredentials(auth.Credentials{User: adminUser, Hash: hash}),
		WithRateLimit(100, 100),
		WithBatchSize(2),
	}, opts...)
	api := New(store, "test", opts...)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	c := &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
	if mem, ok := store.(*norma.InMemory); ok {
		c.store = mem
	}
	return c
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) obtainToken() string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/token", map[string]any{
		"user":     adminUser,
		"password": adminPassword,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](c.t, resp)
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func readBody(t *testing.T, r *http.Response) string {
	t.Helper()
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}

func TestOperationalEndpoints(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 1))

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id header", path)
		}
		resp.Body.Close()
	}

	resp := api.get("/metrics", nil, nil)
	if body := readBody(t, resp); !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics endpoint not served")
	}

	resp = api.get("/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decode[map[string]any](t, resp); body["request_id"] == "" {
		t.Fatalf("expected request_id in error body")
	}
}

type downStore struct {
	*norma.InMemory
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func (downStore) CasaLegislativa(context.Context) (*norma.CasaLegislativa, error) {
	return nil, errors.New("connection refused")
}

func TestNotReadyAndRepositoryFailure(t *testing.T) {
	api := newTestAPI(t, downStore{InMemory: seedStore(t, 1)})

	resp := api.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/lexml", url.Values{"verb": {"Identify"}}, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLexMLDefaultsToListRecords(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 3))

	resp := api.get("/lexml", nil, nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/xml") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "<ListRecords>") {
		t.Fatalf("expected ListRecords response:\n%s", body)
	}
	if got := strings.Count(body, "<record>"); got != 2 {
		t.Fatalf("expected a page of 2 records, got %d", got)
	}
	if !strings.Contains(body, "oai:cmcg.cocalzinho.go.leg.br:sapl/") {
		t.Fatalf("identifier prefix missing:\n%s", body)
	}
	if !strings.Contains(body, "resumptionToken") {
		t.Fatalf("expected resumption token with 3 records and batch 2")
	}
}

func TestLexMLIdentifyUsesRequestHost(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 1))

	resp := api.get("/lexml/", url.Values{"verb": {"Identify"}}, map[string]string{"X-Forwarded-Proto": "https"})
	body := readBody(t, resp)
	host := strings.TrimPrefix(api.baseURL, "http://")
	if !strings.Contains(body, "<baseURL>https://"+host+"</baseURL>") {
		t.Fatalf("baseURL must follow the request:\n%s", body)
	}
	if !strings.Contains(body, "<repositoryName>Câmara Municipal de Cocalzinho de Goiás</repositoryName>") {
		t.Fatalf("repository name missing:\n%s", body)
	}
}

func TestLexMLProtocolErrorIsOK(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 1))

	resp := api.get("/lexml", url.Values{"verb": {"ListRecords"}, "metadataPrefix": {"oai_dc"}}, nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("protocol errors stay 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `code="cannotDisseminateFormat"`) {
		t.Fatalf("expected cannotDisseminateFormat:\n%s", body)
	}
}

func TestRegistryRequiresToken(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 0))

	resp := api.get("/v1/lexml/publicadores", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate")
	}
	resp.Body.Close()

	resp = api.get("/v1/lexml/publicadores", nil, map[string]string{"Authorization": "Bearer garbage"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	token, err := auth.GenerateToken("reader", []string{auth.RoleViewer}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	viewer := map[string]string{"Authorization": "Bearer " + token}
	resp = api.get("/v1/lexml/publicadores", nil, viewer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer can read, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.do(http.MethodPost, "/v1/lexml/publicadores", map[string]any{"id_publicador": 1, "nome": "x"}, viewer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer cannot write, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenEndpoint(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 0))

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing fields", map[string]any{"user": ""}, http.StatusBadRequest},
		{"unknown field", map[string]any{"user": adminUser, "roles": []string{"admin"}}, http.StatusBadRequest},
		{"wrong password", map[string]any{"user": adminUser, "password": "nope"}, http.StatusUnauthorized},
		{"ok", map[string]any{"user": adminUser, "password": adminPassword}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(http.MethodPost, "/v1/auth/token", tt.body, nil)
			defer resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, resp.StatusCode)
			}
		})
	}

	resp := api.get("/v1/auth/token", nil, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublicadorRegistryFlow(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 0))
	authz := map[string]string{"Authorization": "Bearer " + api.obtainToken()}

	resp := api.do(http.MethodPost, "/v1/lexml/publicadores", map[string]any{
		"id_publicador": 88,
		"nome":          "Câmara Municipal",
		"sigla":         "CMCG",
	}, authz)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	created := decode[norma.Publicador](t, resp)
	if created.ID == 0 || loc != "/v1/lexml/publicadores/"+strconv.FormatInt(created.ID, 10) {
		t.Fatalf("unexpected create result %#v at %q", created, loc)
	}

	resp = api.do(http.MethodPost, "/v1/lexml/publicadores", map[string]any{"id_publicador": 88, "nome": "Outra"}, authz)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/lexml/publicadores", map[string]any{"nome": "Sem id"}, authz)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPut, loc, map[string]any{"id_publicador": 88, "nome": "Câmara de Cocalzinho"}, authz)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/lexml/publicadores/999", map[string]any{"id_publicador": 90, "nome": "x"}, authz)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/lexml/publicadores", nil, authz)
	list := decode[struct {
		Items []norma.Publicador `json:"items"`
	}](t, resp)
	if len(list.Items) != 2 || list.Items[1].Nome != "Câmara de Cocalzinho" {
		t.Fatalf("unexpected list %#v", list.Items)
	}
}

func TestProvedorRegistryFlow(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 0))
	authz := map[string]string{"Authorization": "Bearer " + api.obtainToken()}

	resp := api.get("/v1/lexml/provedores", nil, authz)
	empty := decode[map[string][]any](t, resp)
	if empty["items"] == nil || len(empty["items"]) != 0 {
		t.Fatalf("expected empty items array, got %v", empty)
	}

	resp = api.do(http.MethodPost, "/v1/lexml/provedores", map[string]any{
		"id_provedor": 5,
		"nome":        "SAPL",
		"sigla":       "SAPL",
		"xml":         "<provedor/>",
	}, authz)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	created := decode[norma.Provedor](t, resp)

	resp = api.do(http.MethodPut, "/v1/lexml/provedores/"+strconv.FormatInt(created.ID, 10), map[string]any{
		"id_provedor": 5,
		"nome":        "SAPL Interlegis",
		"sigla":       "SAPL",
	}, authz)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/lexml/provedores/abc", map[string]any{}, authz)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for bad id, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/lexml/provedores", nil, authz)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWithoutAuthOpensRegistry(t *testing.T) {
	api := newTestAPI(t, seedStore(t, 0), WithoutAuth())
	resp := api.get("/v1/lexml/publicadores", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 without auth, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
