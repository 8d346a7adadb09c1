// Package harvest is a small OAI-PMH client used to smoke-test a running
// LexML endpoint. It follows resumption tokens and retries transient
// failures.
package harvest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
)

const UserAgent = "sapl-lexml-harvest/1.0"

// DefaultMaxRequests stops runaway harvests against servers that hand out
// the same token forever.
const DefaultMaxRequests = 1024

// Doer lets pester, http.DefaultClient or a test client be swapped in.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client turns OAI requests into decoded responses.
type Client struct {
	doer        Doer
	MaxRequests int
}

// NewClient returns a client backed by pester with exponential backoff.
func NewClient(timeout time.Duration, retries int) *Client {
	c := pester.New()
	c.Timeout = timeout
	c.MaxRetries = retries
	c.Backoff = pester.ExponentialBackoff
	return NewClientDoer(c)
}

// NewClientDoer wraps a user supplied HTTP client.
func NewClientDoer(d Doer) *Client {
	return &Client{doer: d, MaxRequests: DefaultMaxRequests}
}

// Request is one OAI-PMH request. ResumptionToken excludes every other
// argument except Verb.
type Request struct {
	BaseURL         string
	Verb            string
	MetadataPrefix  string
	Identifier      string
	Set             string
	From            string
	Until           string
	ResumptionToken string
}

// URL renders the request as a GET URL.
func (r Request) URL() (string, error) {
	u, err := url.Parse(strings.TrimSpace(r.BaseURL))
	if err != nil {
		return "", fmt.Errorf("harvest: endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("harvest: endpoint %q is not absolute", r.BaseURL)
	}
	vals := url.Values{}
	vals.Set("verb", r.Verb)
	if r.ResumptionToken != "" {
		vals.Set("resumptionToken", r.ResumptionToken)
	} else {
		for k, v := range map[string]string{
			"metadataPrefix": r.MetadataPrefix,
			"identifier":     r.Identifier,
			"set":            r.Set,
			"from":           r.From,
			"until":          r.Until,
		} {
			if v != "" {
				vals.Set(k, v)
			}
		}
	}
	u.RawQuery = vals.Encode()
	return u.String(), nil
}

// OAIError is a protocol error reported inside a 200 response.
type OAIError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

func (e *OAIError) Error() string {
	return fmt.Sprintf("oai: %s: %s", e.Code, strings.TrimSpace(e.Message))
}

type Header struct {
	Status     string   `xml:"status,attr"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec"`
}

// Deleted reports whether the header marks a deleted record.
func (h Header) Deleted() bool { return h.Status == "deleted" }

type Metadata struct {
	Raw string `xml:",innerxml"`
}

type Record struct {
	Header   Header   `xml:"header"`
	Metadata Metadata `xml:"metadata"`
}

type ResumptionToken struct {
	Cursor int    `xml:"cursor,attr"`
	Value  string `xml:",chardata"`
}

type Identify struct {
	RepositoryName    string   `xml:"repositoryName"`
	BaseURL           string   `xml:"baseURL"`
	ProtocolVersion   string   `xml:"protocolVersion"`
	AdminEmails       []string `xml:"adminEmail"`
	EarliestDatestamp string   `xml:"earliestDatestamp"`
	DeletedRecord     string   `xml:"deletedRecord"`
	Granularity       string   `xml:"granularity"`
}

type ListRecords struct {
	Records         []Record        `xml:"record"`
	ResumptionToken ResumptionToken `xml:"resumptionToken"`
}

// Response is the subset of the OAI-PMH envelope the harvester reads.
type Response struct {
	XMLName      xml.Name     `xml:"OAI-PMH"`
	ResponseDate string       `xml:"responseDate"`
	Error        *OAIError    `xml:"error"`
	Identify     *Identify    `xml:"Identify"`
	ListRecords  *ListRecords `xml:"ListRecords"`
	GetRecord    *struct {
		Record Record `xml:"record"`
	} `xml:"GetRecord"`
}

// Do performs a single request. Protocol errors come back as *OAIError
// alongside the decoded response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	link, err := req.URL()
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("User-Agent", UserAgent)
	resp, err := c.doer.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("harvest: %s: %w", req.Verb, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("harvest: %s: unexpected status %s", req.Verb, resp.Status)
	}

	var out Response
	if err := xml.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("harvest: decode %s: %w", req.Verb, err)
	}
	if out.Error != nil && out.Error.Code != "" {
		return &out, out.Error
	}
	return &out, nil
}

// Stats summarises a harvest.
type Stats struct {
	Requests int
	Records  int
	Deleted  int
}

// ListRecords pages through req, calling fn for every record. An empty
// result (noRecordsMatch) is not an error.
func (c *Client) ListRecords(ctx context.Context, req Request, fn func(Record) error) (Stats, error) {
	var stats Stats
	req.Verb = "ListRecords"
	seen := map[string]bool{}
	limit := c.MaxRequests
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	for {
		if stats.Requests >= limit {
			return stats, fmt.Errorf("harvest: stopped after %d requests", stats.Requests)
		}
		resp, err := c.Do(ctx, req)
		stats.Requests++
		if err != nil {
			var oaiErr *OAIError
			if errors.As(err, &oaiErr) && oaiErr.Code == "noRecordsMatch" {
				return stats, nil
			}
			return stats, err
		}
		if resp.ListRecords == nil {
			return stats, errors.New("harvest: response carries no ListRecords element")
		}
		for _, rec := range resp.ListRecords.Records {
			stats.Records++
			if rec.Header.Deleted() {
				stats.Deleted++
			}
			if fn != nil {
				if err := fn(rec); err != nil {
					return stats, err
				}
			}
		}

		token := strings.TrimSpace(resp.ListRecords.ResumptionToken.Value)
		if token == "" {
			return stats, nil
		}
		if seen[token] {
			return stats, fmt.Errorf("harvest: resumption token %q repeated", token)
		}
		seen[token] = true
		req = Request{BaseURL: req.BaseURL, Verb: req.Verb, ResumptionToken: token}
	}
}

// Identify fetches the repository description.
func (c *Client) Identify(ctx context.Context, baseURL string) (*Identify, error) {
	resp, err := c.Do(ctx, Request{BaseURL: baseURL, Verb: "Identify"})
	if err != nil {
		return nil, err
	}
	if resp.Identify == nil {
		return nil, errors.New("harvest: response carries no Identify element")
	}
	return resp.Identify, nil
}
