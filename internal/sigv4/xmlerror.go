// ABOUTME: XML error mapper rendering AWS-style ErrorResponse documents
// ABOUTME: Foreign errors are declined so an outer layer can apply defaults

package sigv4

import (
	"encoding/xml"
	"errors"

	"github.com/driftlock/sigv4gate/internal/requestid"
)

// XMLErrorMapper renders classified errors as AWS-style XML error documents
// under a configured namespace.
type XMLErrorMapper struct {
	namespace string
}

// NewXMLErrorMapper creates a mapper whose documents carry the given xmlns.
func NewXMLErrorMapper(namespace string) *XMLErrorMapper {
	return &XMLErrorMapper{namespace: namespace}
}

type xmlErrorResponse struct {
	XMLName   xml.Name `xml:"ErrorResponse"`
	Namespace string   `xml:"xmlns,attr"`
	Error     xmlError `xml:"Error"`
	RequestID string   `xml:"RequestId,omitempty"`
}

type xmlError struct {
	Type    string `xml:"Type"`
	Code    string `xml:"Code"`
	Message string `xml:"Message,omitempty"`
}

// MapError renders an *AuthError as an ErrorResponse document. Any other
// error type is declined ("not mine"). A recognized error never fails to
// map.
func (m *XMLErrorMapper) MapError(err error, id *requestid.RequestID) (*ErrorResponse, bool) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return nil, false
	}

	kind := "Sender"
	if authErr.Status >= 500 {
		kind = "Receiver"
	}

	doc := xmlErrorResponse{
		Namespace: m.namespace,
		Error: xmlError{
			Type:    kind,
			Code:    authErr.Code,
			Message: authErr.Message,
		},
	}
	if id != nil {
		doc.RequestID = id.String()
	}

	// Marshaling a fixed struct shape cannot fail.
	body, _ := xml.Marshal(doc)

	return &ErrorResponse{
		StatusCode:  authErr.Status,
		ContentType: "text/xml; charset=utf-8",
		Body:        body,
	}, true
}

var _ ErrorMapper = (*XMLErrorMapper)(nil)
