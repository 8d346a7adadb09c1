package oai

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"time"
)

const DefaultBatchSize = 10

type verbFunc func(ctx context.Context, args url.Values) (responsePart, int, error)

type verbRule struct {
	required  []string
	optional  []string
	exclusive string
}

var verbRules = map[string]verbRule{
	"Identify":            {},
	"ListMetadataFormats": {optional: []string{"identifier"}},
	"ListSets":            {exclusive: "resumptionToken"},
	"GetRecord":           {required: []string{"identifier", "metadataPrefix"}},
	"ListIdentifiers":     {required: []string{"metadataPrefix"}, optional: []string{"from", "until", "set"}, exclusive: "resumptionToken"},
	"ListRecords":         {required: []string{"metadataPrefix"}, optional: []string{"from", "until", "set"}, exclusive: "resumptionToken"},
}

// Handler hosts a Server at an HTTP endpoint.
type Handler struct {
	Server Server

	// BatchSize bounds every list response; longer lists continue behind
	// a resumption token.
	BatchSize int

	// Defaults fill in arguments when the request carries no verb.
	Defaults url.Values

	// Observe, when set, is called once per request with the verb, the
	// resulting error (nil on success) and the number of items returned.
	Observe func(verb string, err error, items int)

	verbs map[string]verbFunc
	now   func() time.Time
}

// NewHandler creates a handler for s.
func NewHandler(s Server, batchSize int) *Handler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	h := &Handler{
		Server:    s,
		BatchSize: batchSize,
		now:       time.Now,
	}
	h.verbs = map[string]verbFunc{
		"Identify":            h.identify,
		"ListMetadataFormats": h.listMetadataFormats,
		"ListSets":            h.listSets,
		"GetRecord":           h.getRecord,
		"ListIdentifiers":     h.listIdentifiers,
		"ListRecords":         h.listRecords,
	}
	return h
}

// ServeHTTP answers one OAI-PMH request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	args := url.Values{}
	if err := r.ParseForm(); err == nil {
		args = r.Form
	}
	if args.Get("verb") == "" && len(h.Defaults) > 0 {
		for k, v := range h.Defaults {
			if _, ok := args[k]; !ok {
				args[k] = v
			}
		}
	}
	verb := args.Get("verb")

	resp := envelope{
		XSI:            "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: SchemaLocation,
		ResponseDate:   formatDatestamp(h.now()),
		Request:        echoRequest(args, requestURL(r)),
	}

	payload, items, err := h.dispatch(r.Context(), verb, args)
	if h.Observe != nil {
		h.Observe(verb, err, items)
	}
	if err != nil {
		var oaiErr *Error
		if !errors.As(err, &oaiErr) {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if oaiErr.Code == CodeBadVerb || oaiErr.Code == CodeBadArgument {
			resp.Request = requestElem{BaseURL: resp.Request.BaseURL}
		}
		resp.Errors = []*Error{oaiErr}
	} else {
		resp.Payload = payload
	}

	body, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) dispatch(ctx context.Context, verb string, args url.Values) (responsePart, int, error) {
	fn, ok := h.verbs[verb]
	if !ok {
		return nil, 0, ErrBadVerb(verb)
	}
	if err := validateArgs(verb, args); err != nil {
		return nil, 0, err
	}
	return fn(ctx, args)
}

func validateArgs(verb string, args url.Values) error {
	rule := verbRules[verb]
	allowed := map[string]bool{"verb": true}
	for _, k := range rule.required {
		allowed[k] = true
	}
	for _, k := range rule.optional {
		allowed[k] = true
	}
	for k, v := range args {
		if k == rule.exclusive && rule.exclusive != "" {
			continue
		}
		if !allowed[k] {
			return ErrBadArgument("illegal argument %q for verb %s", k, verb)
		}
		if len(v) > 1 {
			return ErrBadArgument("argument %q is repeated", k)
		}
	}
	if rule.exclusive != "" && args.Get(rule.exclusive) != "" {
		if len(args) > 2 {
			return ErrBadArgument("%s is an exclusive argument", rule.exclusive)
		}
		return nil
	}
	for _, k := range rule.required {
		if args.Get(k) == "" {
			return ErrBadArgument("missing required argument %q", k)
		}
	}
	return nil
}

func (h *Handler) identify(ctx context.Context, _ url.Values) (responsePart, int, error) {
	id, err := h.Server.Identify(ctx)
	if err != nil {
		return nil, 0, err
	}
	resp := &identifyResp{
		RepositoryName:    id.RepositoryName,
		BaseURL:           id.BaseURL,
		ProtocolVersion:   ProtocolVersion,
		AdminEmails:       id.AdminEmails,
		EarliestDatestamp: formatDatestamp(id.EarliestDatestamp),
		DeletedRecord:     id.DeletedRecord,
		Granularity:       id.Granularity,
		Compression:       id.Compression,
	}
	for _, d := range id.Descriptions {
		resp.Descriptions = append(resp.Descriptions, descriptionElem{DC: dcElem{Description: d}})
	}
	return resp, 1, nil
}

func (h *Handler) listMetadataFormats(ctx context.Context, args url.Values) (responsePart, int, error) {
	formats, err := h.Server.ListMetadataFormats(ctx, args.Get("identifier"))
	if err != nil {
		return nil, 0, err
	}
	if len(formats) == 0 {
		return nil, 0, newError(CodeNoMetadataFormats, "no metadata formats available")
	}
	return &listMetadataFormatsResp{Formats: formats}, len(formats), nil
}

func (h *Handler) listSets(ctx context.Context, args url.Values) (responsePart, int, error) {
	if tok := args.Get("resumptionToken"); tok != "" {
		return nil, 0, ErrBadResumptionToken(tok)
	}
	sets, err := h.Server.ListSets(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(sets) == 0 {
		return nil, 0, ErrNoSetHierarchy()
	}
	resp := &listSetsResp{}
	for _, s := range sets {
		resp.Sets = append(resp.Sets, setElem{Spec: s.Spec, Name: s.Name})
	}
	return resp, len(sets), nil
}

func (h *Handler) getRecord(ctx context.Context, args url.Values) (responsePart, int, error) {
	rec, err := h.Server.GetRecord(ctx, args.Get("metadataPrefix"), args.Get("identifier"))
	if err != nil {
		return nil, 0, err
	}
	if rec == nil {
		return nil, 0, ErrIDDoesNotExist(args.Get("identifier"))
	}
	return &getRecordResp{Record: toRecordElem(*rec)}, 1, nil
}

func (h *Handler) listIdentifiers(ctx context.Context, args url.Values) (responsePart, int, error) {
	records, token, err := h.list(ctx, args, h.Server.ListIdentifiers)
	if err != nil {
		return nil, 0, err
	}
	resp := &listIdentifiersResp{ResumptionToken: token}
	for _, rec := range records {
		resp.Headers = append(resp.Headers, toHeaderElem(rec.Header))
	}
	return resp, len(records), nil
}

func (h *Handler) listRecords(ctx context.Context, args url.Values) (responsePart, int, error) {
	records, token, err := h.list(ctx, args, h.Server.ListRecords)
	if err != nil {
		return nil, 0, err
	}
	resp := &listRecordsResp{ResumptionToken: token}
	for _, rec := range records {
		resp.Records = append(resp.Records, toRecordElem(rec))
	}
	return resp, len(records), nil
}

// list fetches one batch plus one extra item to learn whether the list
// continues.
func (h *Handler) list(ctx context.Context, args url.Values, fetch func(context.Context, ListArgs) (Cursor, error)) ([]Record, *tokenElem, error) {
	state := resumption{
		Prefix: args.Get("metadataPrefix"),
		Set:    args.Get("set"),
		From:   args.Get("from"),
		Until:  args.Get("until"),
	}
	resumed := false
	if tok := args.Get("resumptionToken"); tok != "" {
		var err error
		if state, err = decodeResumption(tok); err != nil {
			return nil, nil, err
		}
		resumed = true
	}
	from, until, err := parseRange(state.From, state.Until)
	if err != nil {
		if resumed {
			return nil, nil, ErrBadResumptionToken(args.Get("resumptionToken"))
		}
		return nil, nil, err
	}

	cur, err := fetch(ctx, ListArgs{
		MetadataPrefix: state.Prefix,
		Set:            state.Set,
		From:           from,
		Until:          until,
		Cursor:         state.Cursor,
		BatchSize:      h.BatchSize + 1,
	})
	if err != nil {
		return nil, nil, err
	}
	var records []Record
	for cur.Next() {
		records = append(records, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, ErrNoRecordsMatch()
	}

	var token *tokenElem
	if len(records) > h.BatchSize {
		records = records[:h.BatchSize]
		next := state
		next.Cursor = state.Cursor + h.BatchSize
		token = &tokenElem{Cursor: state.Cursor, Value: next.encode()}
	} else if resumed {
		token = &tokenElem{Cursor: state.Cursor}
	}
	return records, token, nil
}

func echoRequest(args url.Values, base string) requestElem {
	return requestElem{
		Verb:            args.Get("verb"),
		Identifier:      args.Get("identifier"),
		MetadataPrefix:  args.Get("metadataPrefix"),
		From:            args.Get("from"),
		Until:           args.Get("until"),
		Set:             args.Get("set"),
		ResumptionToken: args.Get("resumptionToken"),
		BaseURL:         base,
	}
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	return u.String()
}
