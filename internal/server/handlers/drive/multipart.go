package drive

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

const maxBoundaryLength = 70

// envelopeError is a client error in the multipart envelope. Its message is
// the response body.
type envelopeError struct {
	status  int
	message string
}

func (e *envelopeError) Error() string {
	return e.message
}

func badEnvelope(message string) error {
	return &envelopeError{status: http.StatusBadRequest, message: message}
}

var (
	errNotMultipart    = badEnvelope("Not a multipart request")
	errMissingBoundary = badEnvelope("Missing content-type boundary.")
	errBoundaryTooLong = badEnvelope(fmt.Sprintf("Multipart boundary length limit %d exceeded.", maxBoundaryLength))
	errNoSections      = badEnvelope("No sections in multipart defined")
	errNoDisposition   = badEnvelope("No content disposition in multipart defined")
	errNoFilename      = badEnvelope("No filename defined.")
	errRequestTooLarge = &envelopeError{status: http.StatusRequestEntityTooLarge, message: "Request body too large"}
)

// section is the first part of a multipart body. Body streams straight
// from the request.
type section struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// openSection validates the envelope and positions the reader at the first
// section. Later sections are never read.
func openSection(req *http.Request) (*section, error) {
	contentType := req.Header.Get("Content-Type")
	if !isMultipartContentType(contentType) {
		return nil, errNotMultipart
	}

	boundary, err := getBoundary(contentType)
	if err != nil {
		return nil, err
	}

	part, err := multipart.NewReader(req.Body, boundary).NextPart()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errRequestTooLarge
		}
		return nil, errNoSections
	}

	disposition := part.Header.Get("Content-Disposition")
	if disposition == "" {
		return nil, errNoDisposition
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return nil, errNoDisposition
	}

	return &section{
		// an RFC 2231 filename* is decoded into "filename" and wins over the plain form.
		// Surrounding whitespace is dropped, so a blank name counts as missing.
		FileName:    strings.TrimSpace(params["filename"]),
		ContentType: part.Header.Get("Content-Type"),
		Body:        part,
	}, nil
}

func isMultipartContentType(contentType string) bool {
	return contentType != "" && strings.Contains(strings.ToLower(contentType), "multipart/")
}

func getBoundary(contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errMissingBoundary
	}

	boundary := params["boundary"]
	if strings.TrimSpace(boundary) == "" {
		return "", errMissingBoundary
	}
	if len(boundary) > maxBoundaryLength {
		return "", errBoundaryTooLong
	}
	return boundary, nil
}
