package chunkedgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/sumiya-kuroda/CAVEclient/endpoints"
	"github.com/sumiya-kuroda/CAVEclient/internal/clock"
	"github.com/sumiya-kuroda/CAVEclient/internal/loggingutil"
	"github.com/sumiya-kuroda/CAVEclient/internal/version"
)

// Client issues chunked-graph requests against one server, table and API
// version. It is immutable after construction and safe for concurrent use.
type Client struct {
	serverAddress    string
	table            string
	version          int
	api              variant
	endpoints        EndpointSet
	defaults         Fields
	header           map[string]string
	defaultTimestamp time.Time
	explicitNow      bool
	clock            clock.Clock
	httpClient       *http.Client
	logger           pslog.Base
	telemetry        *instruments
}

// New builds a Client. The requested API version is resolved against the
// endpoint registry without contacting the server; versions this package
// does not implement are ignored when picking the latest one.
func New(opts ...Option) (*Client, error) {
	return build(context.Background(), false, opts)
}

// NewNegotiated is like New but, when the latest version is requested, asks
// the server which API versions it serves and settles on the highest one
// both sides support. An unreachable server falls back to the registry
// maximum.
func NewNegotiated(ctx context.Context, opts ...Option) (*Client, error) {
	return build(ctx, true, opts)
}

func build(ctx context.Context, negotiate bool, opts []Option) (*Client, error) {
	cfg := config{version: Latest}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	reg := endpoints.ChunkedGraph()
	if cfg.registry != nil {
		reg = *cfg.registry
	}
	reg = reg.Restrict(SupportedVersions())
	addr := normalizeServerAddress(cfg.serverAddress)
	logger := loggingutil.WithSubsystem(cfg.logger, "chunkedgraph.client")

	header := map[string]string{}
	if cfg.auth != nil {
		fields, err := cfg.auth.RequestHeader()
		if err != nil {
			return nil, fmt.Errorf("chunkedgraph: auth header: %w", err)
		}
		maps.Copy(header, fields)
	}
	if _, ok := header[headerUserAgent]; !ok {
		ua := cfg.userAgent
		if ua == "" {
			ua = version.UserAgent()
		}
		header[headerUserAgent] = ua
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = defaultHTTPClient(cfg)
	}

	requested := cfg.version
	if negotiate && requested.IsLatest() {
		v, err := NegotiateVersion(ctx, httpClient, reg, addr, header)
		if err != nil {
			return nil, err
		}
		logger.Debug("chunkedgraph.version.negotiated", "version", v, "server", addr)
		requested = V(v)
	}
	set, effective, err := Resolve(requested, reg, addr)
	if err != nil {
		return nil, err
	}
	api, err := variantFor(effective)
	if err != nil {
		return nil, err
	}

	defaults := NewFields(endpoints.ServerKey, addr)
	if cfg.table != "" {
		defaults = defaults.With(FieldTable, cfg.table)
	}
	c := &Client{
		serverAddress:    addr,
		table:            cfg.table,
		version:          effective,
		api:              api,
		endpoints:        set,
		defaults:         defaults,
		header:           header,
		defaultTimestamp: cfg.defaultTimestamp,
		explicitNow:      cfg.explicitNow,
		clock:            clock.OrReal(cfg.clock),
		httpClient:       httpClient,
		logger:           logger,
		telemetry:        newInstruments(cfg.tracerProvider, cfg.meterProvider, effective, logger),
	}
	c.logDebug("chunkedgraph.client.init", "server", addr, "table", cfg.table, "version", effective, "requested", requested.String())
	return c, nil
}

func defaultHTTPClient(cfg config) *http.Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	var rt http.RoundTripper = http.DefaultTransport
	if ok {
		tr := base.Clone()
		tr.MaxIdleConns = DefaultMaxIdleConns
		tr.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
		tr.IdleConnTimeout = DefaultIdleConnTimeout
		rt = tr
	}
	var transportOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.meterProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithMeterProvider(cfg.meterProvider))
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(rt, transportOpts...),
		Timeout:   cfg.httpTimeout,
	}
}

// Version is the effective API version.
func (c *Client) Version() int {
	return c.version
}

// ServerAddress is the normalized server base URL.
func (c *Client) ServerAddress() string {
	return c.serverAddress
}

// TableName is the bound table, or "" when none was configured.
func (c *Client) TableName() string {
	return c.table
}

// DefaultFields returns the fields substituted into every request.
func (c *Client) DefaultFields() Fields {
	return c.defaults
}

// Endpoints returns the resolved templates keyed by endpoint name, with the
// server address and bound table substituted.
func (c *Client) Endpoints() map[string]string {
	out := make(map[string]string, len(c.endpoints.templates))
	for name, t := range c.endpoints.templates {
		out[name] = t.Partial(c.defaults).String()
	}
	return out
}

// RootID returns the root of the object containing supervoxel sv.
func (c *Client) RootID(ctx context.Context, sv uint64, opts ...CallOption) (uint64, error) {
	o := applyCallOptions(opts)
	query := url.Values{}
	if ts, ok := c.timestamp(o); ok {
		query.Set(paramTimestamp, EncodeTimestamp(ts))
	}
	var root uint64
	err := c.run(ctx, OpRootID, NewFields().WithID(FieldSupervoxel, sv), query, sv, func(body []byte) error {
		v, err := decodeScalarField(OpRootID, body, "root_id")
		if err == nil {
			root = v
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return root, nil
}

// MergeLog returns the merge history of root, one entry per merge.
func (c *Client) MergeLog(ctx context.Context, root uint64) ([]json.RawMessage, error) {
	return c.rootList(ctx, OpMergeLog, root)
}

// ChangeLog returns the edit history of root.
func (c *Client) ChangeLog(ctx context.Context, root uint64) ([]json.RawMessage, error) {
	return c.rootList(ctx, OpChangeLog, root)
}

func (c *Client) rootList(ctx context.Context, op string, root uint64) ([]json.RawMessage, error) {
	var items []json.RawMessage
	err := c.run(ctx, op, NewFields().WithID(FieldRoot, root), nil, root, func(body []byte) error {
		v, err := decodeList(op, body)
		if err == nil {
			items = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Leaves returns the supervoxels under root, optionally restricted with
// WithBounds.
func (c *Client) Leaves(ctx context.Context, root uint64, opts ...CallOption) ([]uint64, error) {
	o := applyCallOptions(opts)
	query := url.Values{}
	if o.hasBounds {
		query.Set(paramBounds, o.bounds.Encode())
	}
	var ids []uint64
	err := c.run(ctx, OpLeaves, NewFields().WithID(FieldRoot, root), query, root, func(body []byte) error {
		v, err := decodeUint64Field(OpLeaves, body, "leaf_ids")
		if err == nil {
			ids = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Children returns the direct children of node.
func (c *Client) Children(ctx context.Context, node uint64) ([]uint64, error) {
	var ids []uint64
	err := c.run(ctx, OpChildren, NewFields().WithID(FieldNode, node), nil, node, func(body []byte) error {
		v, err := decodeRawUint64(OpChildren, body)
		if err == nil {
			ids = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ContactSites returns the contact descriptors of root keyed by partner id.
// The descriptors are passed through undecoded.
func (c *Client) ContactSites(ctx context.Context, root uint64, opts ...CallOption) (map[uint64]json.RawMessage, error) {
	o := applyCallOptions(opts)
	query := url.Values{}
	if o.hasBounds {
		query.Set(paramBounds, o.bounds.Encode())
	}
	query.Set(paramPartners, encodeFlag(o.partners))
	var sites map[uint64]json.RawMessage
	err := c.run(ctx, OpContactSites, NewFields().WithID(FieldRoot, root), query, root, func(body []byte) error {
		v, err := decodeIntKeyedMap(OpContactSites, body)
		if err == nil {
			sites = v
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// CloudVolumePath returns the storage path of the bound table. No request is
// made.
func (c *Client) CloudVolumePath() (string, error) {
	_, tmpl, err := c.operation(OpCloudVolumePath)
	if err != nil {
		return "", err
	}
	return tmpl.Expand(c.defaults)
}

// timestamp applies the call option, the client default and finally, when
// enabled, the clock.
func (c *Client) timestamp(o callOptions) (time.Time, bool) {
	switch {
	case o.hasTimestamp:
		return o.timestamp, true
	case !c.defaultTimestamp.IsZero():
		return c.defaultTimestamp, true
	case c.explicitNow:
		return c.clock.Now().UTC(), true
	}
	return time.Time{}, false
}

func (c *Client) operation(op string) (operationSpec, Template, error) {
	spec, ok := c.api.operation(op)
	if !ok {
		return operationSpec{}, Template{}, &ConfigurationError{
			Requested: V(c.version),
			Reason:    fmt.Sprintf("operation %q not available in api version %d", op, c.version),
			Err:       ErrUnknownOperation,
		}
	}
	tmpl, ok := c.endpoints.Lookup(spec.endpoint)
	if !ok {
		return operationSpec{}, Template{}, &ConfigurationError{
			Requested: V(c.version),
			Reason:    fmt.Sprintf("endpoint %q missing from registry for api version %d", spec.endpoint, c.version),
			Err:       ErrUnknownOperation,
		}
	}
	return spec, tmpl, nil
}

// run issues op and hands a 2xx body to decode. Span and metrics cover the
// whole call including decoding.
func (c *Client) run(ctx context.Context, op string, fields Fields, query url.Values, id uint64, decode func([]byte) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	spec, tmpl, err := c.operation(op)
	if err != nil {
		return err
	}
	var payload any
	if spec.body == bodyRootList {
		payload = []uint64{id}
	}
	req, err := buildRequest(ctx, spec.method, tmpl, c.defaults.Merge(fields), query, payload)
	if err != nil {
		return err
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		req.Header.Set(headerCorrelationID, cid)
	}

	target := req.URL.String()
	ctx, span := c.telemetry.start(ctx, op, req.Method, target)
	defer span.End()
	req = req.WithContext(ctx)

	begin := time.Now()
	c.logTraceCtx(ctx, "chunkedgraph.http.start", "op", op, "method", req.Method, "url", target)
	status, body, err := c.send(req, op)
	if err == nil {
		err = decode(body)
	}
	c.telemetry.finish(ctx, span, op, status, len(body), begin, err)
	c.logTraceCtx(ctx, "chunkedgraph.http.done", "op", op, "status", status, "bytes", len(body), "elapsed", time.Since(begin), "ok", err == nil)
	return err
}

func (c *Client) send(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &HTTPError{Op: op, Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, body, &HTTPError{Op: op, Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode, Body: body, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &HTTPError{Op: op, Method: req.Method, URL: req.URL.String(), Status: resp.StatusCode, Body: body}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	return append(enriched, "cid", cid)
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Trace(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebug(msg string, keyvals ...any) {
	c.logger.Debug(msg, keyvals...)
}
