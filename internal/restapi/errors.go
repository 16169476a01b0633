package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/estatesync/internal/schema"
)

var (
	ErrTransport    = errors.New("transport error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("service error")
)

// APIError reports a business-level failure of the listing service: either a
// status >= 400 or a response that lacks the expected result code.
//
// Both Kind (an operation sentinel such as gateway.ErrCreate) and Err (a
// status sentinel such as ErrNotFound) match with errors.Is.
type APIError struct {
	Op         string
	Subject    string
	StatusCode int
	Messages   []schema.Message
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Subject != "" {
		b.WriteString(" ")
		b.WriteString(e.Subject)
	}
	fmt.Fprintf(&b, " failed (status %d)", e.StatusCode)
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(schema.JoinMessages(e.Messages))
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithOp returns a copy of e relabeled for a higher-level operation.
func (e *APIError) WithOp(op, subject string, kind error) *APIError {
	c := *e
	c.Op = op
	c.Subject = subject
	if kind != nil {
		c.Kind = kind
	}
	return &c
}

func mapStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 400:
		return ErrServer
	default:
		return nil
	}
}
