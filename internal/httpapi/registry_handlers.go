package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sapl.leg.br/lexml/internal/audit"
	"sapl.leg.br/lexml/internal/auth"
	"sapl.leg.br/lexml/internal/norma"
)

func (a *API) handlePublicadores(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermRegistryRead) {
			return
		}
		list, err := a.store.ListPublicadores(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(list)})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermRegistryWrite) {
			return
		}
		var p norma.Publicador
		if err := decodeJSON(w, r, &p); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p.ID = 0
		if err := a.store.SavePublicador(r.Context(), &p); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		a.audit(r, "lexml.publicador.create", p.ID, map[string]any{
			"id_publicador": p.IDPublicador,
			"nome":          p.Nome,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/lexml/publicadores/%d", p.ID))
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePublicadorResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/lexml/publicadores/")
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermRegistryWrite) {
		return
	}
	var p norma.Publicador
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = id
	if err := a.store.SavePublicador(r.Context(), &p); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r, "lexml.publicador.update", p.ID, map[string]any{
		"id_publicador": p.IDPublicador,
		"nome":          p.Nome,
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleProvedores(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermRegistryRead) {
			return
		}
		list, err := a.store.ListProvedores(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(list)})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermRegistryWrite) {
			return
		}
		var p norma.Provedor
		if err := decodeJSON(w, r, &p); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p.ID = 0
		if err := a.store.SaveProvedor(r.Context(), &p); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		a.audit(r, "lexml.provedor.create", p.ID, map[string]any{
			"id_provedor": p.IDProvedor,
			"sigla":       p.Sigla,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/lexml/provedores/%d", p.ID))
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProvedorResource(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(w, r, "/v1/lexml/provedores/")
	if !ok {
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermRegistryWrite) {
		return
	}
	var p norma.Provedor
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p.ID = id
	if err := a.store.SaveProvedor(r.Context(), &p); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r, "lexml.provedor.update", p.ID, map[string]any{
		"id_provedor": p.IDProvedor,
		"sigla":       p.Sigla,
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) audit(r *http.Request, event string, id int64, fields map[string]any) {
	fields["id"] = id
	_ = audit.LogEvent(r.Context(), event, fields)
}

// resourceID parses the numeric id following prefix, writing 404 when
// the path does not name a single resource.
func resourceID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || strings.Contains(raw, "/") || err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, norma.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, norma.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, norma.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "registry operation failed")
	}
}
