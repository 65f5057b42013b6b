package chunkedgraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedVersion is wrapped by ConfigurationError when the requested
// API version has no registered templates.
var ErrUnsupportedVersion = errors.New("chunkedgraph: unsupported api version")

// ErrMissingField is wrapped by TemplateError when a placeholder has no value.
var ErrMissingField = errors.New("chunkedgraph: missing template field")

// ErrUnknownOperation is wrapped by ConfigurationError when the resolved
// endpoint set has no template for an operation.
var ErrUnknownOperation = errors.New("chunkedgraph: no endpoint for operation")

// ConfigurationError reports a client that cannot be built from the supplied
// settings. No request is issued when it is returned.
type ConfigurationError struct {
	Requested Version
	Available []int
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("chunkedgraph: ")
	if e.Reason != "" {
		sb.WriteString(e.Reason)
	} else {
		fmt.Fprintf(&sb, "unsupported API version %s", e.Requested)
	}
	if len(e.Available) > 0 {
		parts := make([]string, len(e.Available))
		for i, v := range e.Available {
			parts[i] = strconv.Itoa(v)
		}
		fmt.Fprintf(&sb, " (available: %s)", strings.Join(parts, ", "))
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TemplateError reports a malformed template or a placeholder left without
// a value.
type TemplateError struct {
	Template string
	Field    string
	Reason   string
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("chunkedgraph: template %q: no value for field %q", e.Template, e.Field)
	}
	return fmt.Sprintf("chunkedgraph: template %q: %s", e.Template, e.Reason)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// HTTPError reports a transport failure (Err set, Status zero) or a
// non-success response (Status and Body set).
type HTTPError struct {
	Op     string
	Method string
	URL    string
	Status int
	// Body holds the raw response body for diagnostics.
	Body []byte
	Err  error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunkedgraph: %s %s: %v", e.Method, e.URL, e.Err)
	}
	msg := fmt.Sprintf("chunkedgraph: %s %s: status %d", e.Method, e.URL, e.Status)
	if snippet := bodySnippet(e.Body); snippet != "" {
		msg += ": " + snippet
	}
	return msg
}

func (e *HTTPError) Unwrap() error { return e.Err }

// DecodeError reports a response body that does not have the shape the
// operation expects.
type DecodeError struct {
	Op     string
	Reason string
	Body   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunkedgraph: decode %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("chunkedgraph: decode %s: %s", e.Op, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const maxSnippet = 256

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}
