package oai

import (
	"encoding/xml"
	"fmt"
)

// OAI-PMH error codes.
const (
	CodeBadArgument             = "badArgument"
	CodeBadResumptionToken      = "badResumptionToken"
	CodeBadVerb                 = "badVerb"
	CodeCannotDisseminateFormat = "cannotDisseminateFormat"
	CodeIDDoesNotExist          = "idDoesNotExist"
	CodeNoMetadataFormats       = "noMetadataFormats"
	CodeNoRecordsMatch          = "noRecordsMatch"
	CodeNoSetHierarchy          = "noSetHierarchy"
)

// Error is a protocol error. It is rendered inside the OAI-PMH envelope
// with HTTP 200; any other error returned by a Server is an internal
// failure.
type Error struct {
	XMLName xml.Name `xml:"error"`
	Code    string   `xml:"code,attr"`
	Message string   `xml:",chardata"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("oai: %s: %s", e.Code, e.Message)
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrCannotDisseminateFormat reports an unsupported metadataPrefix.
func ErrCannotDisseminateFormat(prefix string) *Error {
	return newError(CodeCannotDisseminateFormat, "metadata format %q is not supported by this repository", prefix)
}

// ErrIDDoesNotExist reports an unknown identifier.
func ErrIDDoesNotExist(identifier string) *Error {
	return newError(CodeIDDoesNotExist, "identifier %q does not exist", identifier)
}

// ErrNoRecordsMatch reports an empty list result.
func ErrNoRecordsMatch() *Error {
	return newError(CodeNoRecordsMatch, "no records match the request")
}

// ErrNoSetHierarchy reports that sets are not supported.
func ErrNoSetHierarchy() *Error {
	return newError(CodeNoSetHierarchy, "this repository does not support sets")
}

// ErrBadArgument reports an illegal, missing or malformed argument.
func ErrBadArgument(format string, args ...any) *Error {
	return newError(CodeBadArgument, format, args...)
}

// ErrBadResumptionToken reports an invalid or expired token.
func ErrBadResumptionToken(token string) *Error {
	return newError(CodeBadResumptionToken, "resumption token %q is invalid", token)
}

// ErrBadVerb reports an unknown or missing verb.
func ErrBadVerb(verb string) *Error {
	return newError(CodeBadVerb, "illegal OAI verb: %q", verb)
}
