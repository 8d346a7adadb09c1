// Package httpapi exposes the LexML OAI-PMH endpoint, the registry admin
// API and the operational endpoints over HTTP, plus gRPC health.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"sapl.leg.br/lexml/internal/auth"
	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/obs"
	"sapl.leg.br/lexml/internal/provider"
)

const serviceName = "sapl-lexml"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the repository.
type ReadyProbe struct {
	Repo interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Repo == nil {
		return nil
	}
	return rp.Repo.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	store      norma.Store
	readyProbe readinessChecker
	version    string

	batchSize  int
	maxBody    int64
	rateBurst  int
	ratePerSec float64

	credentials auth.Credentials
	secured     bool
}

// Option configures the API.
type Option func(*API)

// WithBatchSize sets the OAI-PMH page size.
func WithBatchSize(n int) Option {
	return func(a *API) { a.batchSize = n }
}

// WithRateLimit sets the per-IP token bucket. A zero rate disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBody = n }
}

// WithCredentials enables POST /v1/auth/token for the given admin account.
func WithCredentials(c auth.Credentials) Option {
	return func(a *API) { a.credentials = c }
}

// WithoutAuth disables bearer token checks on the admin routes. Only for
// local development.
func WithoutAuth() Option {
	return func(a *API) { a.secured = false }
}

func New(store norma.Store, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		store:      store,
		readyProbe: ReadyProbe{Repo: store},
		version:    version,
		batchSize:  provider.DefaultBatchSize,
		maxBody:    1 << 20,
		rateBurst:  40,
		ratePerSec: 20,
		secured:    true,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/lexml", a.handleLexML)
	a.mux.HandleFunc("/lexml/", a.handleLexML)

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/lexml/publicadores", a.handlePublicadores)
	a.mux.HandleFunc("/v1/lexml/publicadores/", a.handlePublicadorResource)
	a.mux.HandleFunc("/v1/lexml/provedores", a.handleProvedores)
	a.mux.HandleFunc("/v1/lexml/provedores/", a.handleProvedorResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"batch_size": a.batchSize,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
