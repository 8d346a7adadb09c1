// Package oai is a small OAI-PMH 2.0 data-provider engine. It parses
// harvester requests, enforces the protocol's argument rules, batches
// list responses behind resumption tokens and serialises the XML
// envelope. Repository specifics live behind the Server interface.
package oai

import (
	"context"
	"time"
)

const (
	ProtocolVersion = "2.0"
	Namespace       = "http://www.openarchives.org/OAI/2.0/"
	SchemaLocation  = Namespace + " http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd"

	GranularitySeconds = "YYYY-MM-DDThh:mm:ssZ"
	GranularityDay     = "YYYY-MM-DD"

	DeletedTransient  = "transient"
	DeletedNo         = "no"
	DeletedPersistent = "persistent"
)

// Server is the capability set a repository exposes to the engine.
type Server interface {
	Identify(ctx context.Context) (*Identity, error)
	ListMetadataFormats(ctx context.Context, identifier string) ([]Format, error)
	ListSets(ctx context.Context) ([]Set, error)
	// ListRecords returns a forward-only cursor over at most args.BatchSize
	// records starting at args.Cursor.
	ListRecords(ctx context.Context, args ListArgs) (Cursor, error)
	ListIdentifiers(ctx context.Context, args ListArgs) (Cursor, error)
	GetRecord(ctx context.Context, metadataPrefix, identifier string) (*Record, error)
}

// Cursor walks a one-shot result set.
type Cursor interface {
	Next() bool
	Record() Record
	Err() error
}

// ListArgs are the selective-harvesting arguments of a list request.
type ListArgs struct {
	MetadataPrefix string
	Set            string
	From           *time.Time
	Until          *time.Time
	Cursor         int
	BatchSize      int
}

// Identity describes the repository for the Identify verb.
type Identity struct {
	RepositoryName    string
	BaseURL           string
	AdminEmails       []string
	EarliestDatestamp time.Time
	DeletedRecord     string
	Granularity       string
	Compression       []string
	Descriptions      []string
}

// Format is a metadata format the repository can disseminate.
type Format struct {
	Prefix    string `xml:"metadataPrefix"`
	Schema    string `xml:"schema"`
	Namespace string `xml:"metadataNamespace"`
}

// Set is a selective-harvesting set.
type Set struct {
	Spec string
	Name string
}

// Header identifies one record.
type Header struct {
	Identifier string
	Datestamp  time.Time
	SetSpecs   []string
	Deleted    bool
}

// Record is a header plus the raw metadata XML.
type Record struct {
	Header   Header
	Metadata []byte
}

// SliceCursor adapts a slice to Cursor.
type SliceCursor struct {
	records []Record
	pos     int
}

// NewSliceCursor returns a cursor positioned before the first record.
func NewSliceCursor(records []Record) *SliceCursor {
	return &SliceCursor{records: records, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.records) {
		c.pos = len(c.records)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Record() Record { return c.records[c.pos] }
func (c *SliceCursor) Err() error     { return nil }
