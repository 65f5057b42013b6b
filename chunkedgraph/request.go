package chunkedgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Query parameter names understood by the service.
const (
	paramTimestamp = "timestamp"
	paramBounds    = "bounds"
	paramPartners  = "partners"
)

const (
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	headerCorrelationID = "X-Correlation-Id"
	contentTypeJSON     = "application/json"
)

// CallOption adjusts a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	timestamp    time.Time
	hasTimestamp bool
	bounds       Bounds
	hasBounds    bool
	partners     bool
}

// WithTimestamp queries the graph as it was at t. It overrides the client
// default timestamp.
func WithTimestamp(t time.Time) CallOption {
	return func(o *callOptions) {
		o.timestamp = t
		o.hasTimestamp = true
	}
}

// WithBounds restricts a spatial query to b.
func WithBounds(b Bounds) CallOption {
	return func(o *callOptions) {
		o.bounds = b
		o.hasBounds = true
	}
}

// WithPartners asks contact-site queries to resolve partner root ids.
func WithPartners(enabled bool) CallOption {
	return func(o *callOptions) {
		o.partners = enabled
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// EncodeTimestamp renders t as whole Unix seconds. The instant is taken in
// UTC; sub-second precision is dropped.
func EncodeTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

// encodeFlag renders booleans capitalised, as the service parses them.
func encodeFlag(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// buildRequest expands tmpl with fields and assembles the HTTP request. A
// non-nil payload is sent as a JSON body.
func buildRequest(ctx context.Context, method string, tmpl Template, fields Fields, query url.Values, payload any) (*http.Request, error) {
	target, err := tmpl.Expand(fields)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, &TemplateError{Template: tmpl.String(), Reason: "expanded URL is invalid", Err: err}
		}
		q := u.Query()
		for k, vals := range query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	return req, nil
}
