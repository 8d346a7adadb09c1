package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"sapl.leg.br/lexml/internal/lexml"
	"sapl.leg.br/lexml/internal/oai"
	"sapl.leg.br/lexml/internal/obs"
	"sapl.leg.br/lexml/internal/provider"
)

// harvestDefaults answer a bare GET /lexml with the first ListRecords page.
var harvestDefaults = url.Values{
	"verb":           {"ListRecords"},
	"metadataPrefix": {lexml.MetadataName},
}

// handleLexML builds a provider for the configured house and the URL the
// harvester used, then hands the request to the OAI-PMH engine.
func (a *API) handleLexML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	ctx := r.Context()
	casa, err := a.store.CasaLegislativa(ctx)
	if err != nil {
		a.lexmlFailure(w, r, "casa_legislativa", err)
		return
	}
	cfg, err := provider.ConfigFromCasa(casa, requestURL(r), a.batchSize)
	if err != nil {
		a.lexmlFailure(w, r, "config", err)
		return
	}

	h := oai.NewHandler(provider.New(a.store, casa, cfg), cfg.BatchSize)
	h.Defaults = harvestDefaults
	h.Observe = func(verb string, err error, items int) {
		obs.ObserveOAI(verb, outcome(err), items)
		if err != nil && outcome(err) == "internal" {
			obs.LogEvent("error", "lexml_request_failed", map[string]any{
				"request_id": RequestIDFromContext(ctx),
				"verb":       verb,
				"error":      err.Error(),
			})
		}
	}
	h.ServeHTTP(w, r)
}

func (a *API) lexmlFailure(w http.ResponseWriter, r *http.Request, stage string, err error) {
	obs.ObserveOAI(r.FormValue("verb"), "internal", 0)
	obs.LogEvent("error", "lexml_request_failed", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"stage":      stage,
		"error":      err.Error(),
	})
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var oaiErr *oai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.Code
	}
	return "internal"
}

// requestURL reconstructs the absolute URL the client asked for, honouring
// the usual reverse proxy header.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}
