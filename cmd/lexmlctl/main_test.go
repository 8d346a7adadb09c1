package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapl.leg.br/lexml/internal/auth"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestURNCommand(t *testing.T) {
	out, err := run(t, "", "urn",
		"--tipo", "lei", "--descricao", "Lei Ordinária", "--numero", "123", "--data", "2020-05-14",
		"--sigla", "CMCG", "--municipio", "Cocalzinho de Goiás", "--uf", "GO",
		"--site", "www.cocalzinho.go.leg.br")
	require.NoError(t, err)
	assert.Contains(t, out, "urn:lex:br;go;cocalzinho.goiás:municipal:lei:2020-05-14;123")
	assert.Contains(t, out, "oai:cmcg.cocalzinho.go.leg.br:sapl/lei;2020;123")
	assert.Contains(t, out, "Lei Ordinária n° 123, de 14 de Maio de 2020")
}

func TestURNCommandRejectsBadDate(t *testing.T) {
	_, err := run(t, "", "urn", "--numero", "1", "--data", "14/05/2020")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")

	_, err = run(t, "", "urn", "--data", "2020-05-14")
	require.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("SAPL_LEXML_AUTH_SECRET", "cli-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	out, err := run(t, "", "token", "--user", "ops", "--role", "viewer")
	require.NoError(t, err)

	claims, err := auth.ParseAndValidate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := run(t, "hunter2\n", "hash-password")
	require.NoError(t, err)
	require.NoError(t, auth.VerifyPassword(strings.TrimSpace(out), "hunter2"))

	_, err = run(t, "", "hash-password")
	require.Error(t, err)
}

func TestHarvestCommandReportsIdentifyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := run(t, "", "harvest", "--retries", "1", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identify")
}
