package oai

import (
	"encoding/xml"
	"time"
)

const datestampLayout = "2006-01-02T15:04:05Z"

type envelope struct {
	XMLName        xml.Name     `xml:"http://www.openarchives.org/OAI/2.0/ OAI-PMH"`
	XSI            string       `xml:"xmlns:xsi,attr"`
	SchemaLocation string       `xml:"xsi:schemaLocation,attr"`
	ResponseDate   string       `xml:"responseDate"`
	Request        requestElem  `xml:"request"`
	Errors         []*Error     `xml:"error"`
	Payload        responsePart // nil when Errors is set
}

type requestElem struct {
	Verb            string `xml:"verb,attr,omitempty"`
	Identifier      string `xml:"identifier,attr,omitempty"`
	MetadataPrefix  string `xml:"metadataPrefix,attr,omitempty"`
	From            string `xml:"from,attr,omitempty"`
	Until           string `xml:"until,attr,omitempty"`
	Set             string `xml:"set,attr,omitempty"`
	ResumptionToken string `xml:"resumptionToken,attr,omitempty"`
	BaseURL         string `xml:",chardata"`
}

type responsePart interface{}

type identifyResp struct {
	XMLName           xml.Name          `xml:"Identify"`
	RepositoryName    string            `xml:"repositoryName"`
	BaseURL           string            `xml:"baseURL"`
	ProtocolVersion   string            `xml:"protocolVersion"`
	AdminEmails       []string          `xml:"adminEmail"`
	EarliestDatestamp string            `xml:"earliestDatestamp"`
	DeletedRecord     string            `xml:"deletedRecord"`
	Granularity       string            `xml:"granularity"`
	Compression       []string          `xml:"compression,omitempty"`
	Descriptions      []descriptionElem `xml:"description,omitempty"`
}

type descriptionElem struct {
	DC dcElem `xml:"http://www.openarchives.org/OAI/2.0/oai_dc/ dc"`
}

type dcElem struct {
	Description string `xml:"http://purl.org/dc/elements/1.1/ description"`
}

type listMetadataFormatsResp struct {
	XMLName xml.Name `xml:"ListMetadataFormats"`
	Formats []Format `xml:"metadataFormat"`
}

type listSetsResp struct {
	XMLName xml.Name  `xml:"ListSets"`
	Sets    []setElem `xml:"set"`
}

type setElem struct {
	Spec string `xml:"setSpec"`
	Name string `xml:"setName"`
}

type listIdentifiersResp struct {
	XMLName         xml.Name     `xml:"ListIdentifiers"`
	Headers         []headerElem `xml:"header"`
	ResumptionToken *tokenElem   `xml:"resumptionToken"`
}

type listRecordsResp struct {
	XMLName         xml.Name     `xml:"ListRecords"`
	Records         []recordElem `xml:"record"`
	ResumptionToken *tokenElem   `xml:"resumptionToken"`
}

type getRecordResp struct {
	XMLName xml.Name   `xml:"GetRecord"`
	Record  recordElem `xml:"record"`
}

type headerElem struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec"`
}

type recordElem struct {
	Header   headerElem    `xml:"header"`
	Metadata *metadataElem `xml:"metadata"`
}

type metadataElem struct {
	Inner []byte `xml:",innerxml"`
}

// tokenElem is the resumptionToken element. An empty Value with a
// cursor marks the last page of a resumed list.
type tokenElem struct {
	Cursor int    `xml:"cursor,attr"`
	Value  string `xml:",chardata"`
}

func formatDatestamp(t time.Time) string {
	return t.UTC().Format(datestampLayout)
}

func toHeaderElem(h Header) headerElem {
	e := headerElem{
		Identifier: h.Identifier,
		Datestamp:  formatDatestamp(h.Datestamp),
		SetSpecs:   h.SetSpecs,
	}
	if h.Deleted {
		e.Status = "deleted"
	}
	return e
}

func toRecordElem(r Record) recordElem {
	e := recordElem{Header: toHeaderElem(r.Header)}
	if !r.Header.Deleted {
		e.Metadata = &metadataElem{Inner: r.Metadata}
	}
	return e
}
