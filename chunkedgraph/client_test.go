package chunkedgraph_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sumiya-kuroda/CAVEclient/auth"
	"github.com/sumiya-kuroda/CAVEclient/chunkedgraph"
	"github.com/sumiya-kuroda/CAVEclient/endpoints"
	"github.com/sumiya-kuroda/CAVEclient/internal/clock"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Header: req.Header.Clone(),
		Body:   body,
	})
}

func (r *recorder) last(t *testing.T) recordedRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		t.Fatalf("no request recorded")
	}
	return r.requests[len(r.requests)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// newTestServer serves fixed responses keyed by URL path.
func newTestServer(t *testing.T, routes map[string]func(http.ResponseWriter)) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		handler, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func jsonBody(body string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func rawBody(body []byte) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}
}

func newClient(t *testing.T, srv *httptest.Server, opts ...chunkedgraph.Option) *chunkedgraph.Client {
	t.Helper()
	base := []chunkedgraph.Option{
		chunkedgraph.WithServerAddress(srv.URL),
		chunkedgraph.WithTable("fly_v31"),
	}
	cli, err := chunkedgraph.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return cli
}

const v1Prefix = "/segmentation/api/v1/table/fly_v31"

func TestNewDefaults(t *testing.T) {
	cli, err := chunkedgraph.New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.Version() != 1 {
		t.Fatalf("expected latest version 1, got %d", cli.Version())
	}
	if cli.ServerAddress() != endpoints.DefaultServerAddress {
		t.Fatalf("unexpected server %q", cli.ServerAddress())
	}
	if cli.TableName() != "" {
		t.Fatalf("unexpected table %q", cli.TableName())
	}
	if _, ok := cli.DefaultFields().Lookup(chunkedgraph.FieldTable); ok {
		t.Fatalf("table_id must not be bound without a table")
	}
	if _, err := cli.CloudVolumePath(); !errors.Is(err, chunkedgraph.ErrMissingField) {
		t.Fatalf("expected missing table_id, got %v", err)
	}
	want := endpoints.DefaultServerAddress + "/segmentation/api/v1/table/{table_id}/node/{root_id}/leaves"
	if got := cli.Endpoints()[endpoints.LeavesFromRoot]; got != want {
		t.Fatalf("unbound table must stay a placeholder, got %q", got)
	}
}

func TestNewUnsupportedVersion(t *testing.T) {
	srv, rec := newTestServer(t, nil)
	for _, negotiate := range []bool{false, true} {
		opts := []chunkedgraph.Option{
			chunkedgraph.WithServerAddress(srv.URL),
			chunkedgraph.WithTable("fly_v31"),
			chunkedgraph.WithAPIVersion(chunkedgraph.V(9)),
		}
		var err error
		if negotiate {
			_, err = chunkedgraph.NewNegotiated(context.Background(), opts...)
		} else {
			_, err = chunkedgraph.New(opts...)
		}
		var cfgErr *chunkedgraph.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("negotiate=%v: expected ConfigurationError, got %v", negotiate, err)
		}
		if !errors.Is(err, chunkedgraph.ErrUnsupportedVersion) {
			t.Fatalf("negotiate=%v: expected ErrUnsupportedVersion, got %v", negotiate, err)
		}
	}
	if rec.count() != 0 {
		t.Fatalf("unsupported version must not reach the server, got %d requests", rec.count())
	}
}

func TestNewIgnoresUnimplementedRegistryVersions(t *testing.T) {
	reg := endpoints.ChunkedGraph()
	reg.Versions[4] = endpoints.Templates{endpoints.CloudVolumePath: "future://{table_id}"}
	cli, err := chunkedgraph.New(chunkedgraph.WithRegistry(reg), chunkedgraph.WithTable("t"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.Version() != 1 {
		t.Fatalf("expected highest implemented version, got %d", cli.Version())
	}
}

func TestCloudVolumePathWithoutNetwork(t *testing.T) {
	srv, rec := newTestServer(t, nil)
	cli, err := chunkedgraph.New(
		chunkedgraph.WithServerAddress(srv.URL),
		chunkedgraph.WithTable("mydataset"),
		chunkedgraph.WithRegistry(testRegistry()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.Version() != 1 {
		t.Fatalf("expected version 1, got %d", cli.Version())
	}
	path, err := cli.CloudVolumePath()
	if err != nil {
		t.Fatalf("cloudvolume path: %v", err)
	}
	if path != "graphene://"+srv.URL+"/segmentation/table/mydataset" {
		t.Fatalf("unexpected path %q", path)
	}
	if rec.count() != 0 {
		t.Fatalf("cloudvolume path must not issue requests")
	}
}

func TestRootIDTimestampResolution(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/123/root": jsonBody(`{"root_id": 864691135000000001}`),
	})
	ctx := context.Background()
	def := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	explicit := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))

	plain := newClient(t, srv)
	root, err := plain.RootID(ctx, 123)
	if err != nil {
		t.Fatalf("root id: %v", err)
	}
	if root != 864691135000000001 {
		t.Fatalf("unexpected root %d", root)
	}
	req := rec.last(t)
	if req.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", req.Method)
	}
	if _, ok := req.Query["timestamp"]; ok {
		t.Fatalf("timestamp must be omitted without default, got %v", req.Query)
	}

	withDefault := newClient(t, srv, chunkedgraph.WithDefaultTimestamp(def))
	if _, err := withDefault.RootID(ctx, 123); err != nil {
		t.Fatalf("root id: %v", err)
	}
	if got := rec.last(t).Query["timestamp"]; len(got) != 1 || got[0] != "1704164645" {
		t.Fatalf("expected default timestamp, got %v", got)
	}

	if _, err := withDefault.RootID(ctx, 123, chunkedgraph.WithTimestamp(explicit)); err != nil {
		t.Fatalf("root id: %v", err)
	}
	if got := rec.last(t).Query["timestamp"]; len(got) != 1 || got[0] != chunkedgraph.EncodeTimestamp(explicit) {
		t.Fatalf("explicit timestamp must win, got %v", got)
	}
	if chunkedgraph.EncodeTimestamp(explicit) != "1685574000" {
		t.Fatalf("timestamp not encoded in UTC: %s", chunkedgraph.EncodeTimestamp(explicit))
	}

	clk := clock.NewManual(time.Unix(1700000000, 0))
	withNow := newClient(t, srv, chunkedgraph.WithExplicitNow(), chunkedgraph.WithClock(clk))
	if _, err := withNow.RootID(ctx, 123); err != nil {
		t.Fatalf("root id: %v", err)
	}
	if got := rec.last(t).Query["timestamp"]; len(got) != 1 || got[0] != "1700000000" {
		t.Fatalf("expected clock timestamp, got %v", got)
	}
}

func TestRootListOperations(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/root/77/merge_log":  jsonBody(`[{"merge_edge": [[1, 2]]}, {"merge_edge": [[3, 4]]}]`),
		v1Prefix + "/root/77/change_log": jsonBody(`[]`),
	})
	cli := newClient(t, srv)
	ctx := context.Background()

	merges, err := cli.MergeLog(ctx, 77)
	if err != nil {
		t.Fatalf("merge log: %v", err)
	}
	if len(merges) != 2 || string(merges[1]) != `{"merge_edge": [[3, 4]]}` {
		t.Fatalf("unexpected merge log %s", merges)
	}
	req := rec.last(t)
	if req.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON content type, got %q", req.Header.Get("Content-Type"))
	}
	var payload []uint64
	if err := json.Unmarshal(req.Body, &payload); err != nil || len(payload) != 1 || payload[0] != 77 {
		t.Fatalf("expected body [77], got %s (%v)", req.Body, err)
	}

	changes, err := cli.ChangeLog(ctx, 77)
	if err != nil {
		t.Fatalf("change log: %v", err)
	}
	if changes == nil || len(changes) != 0 {
		t.Fatalf("expected empty change log, got %v", changes)
	}
}

func TestLeavesBounds(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/900/leaves": jsonBody(`{"leaf_ids": [1, 2, 3]}`),
	})
	cli := newClient(t, srv)
	ctx := context.Background()

	leaves, err := cli.Leaves(ctx, 900)
	if err != nil {
		t.Fatalf("leaves: %v", err)
	}
	if len(leaves) != 3 || leaves[2] != 3 {
		t.Fatalf("unexpected leaves %v", leaves)
	}
	if _, ok := rec.last(t).Query["bounds"]; ok {
		t.Fatalf("bounds must be omitted when unset")
	}

	if _, err := cli.Leaves(ctx, 900, chunkedgraph.WithBounds(chunkedgraph.NewBounds(0, 10, 20, 30, 40, 50))); err != nil {
		t.Fatalf("leaves: %v", err)
	}
	req := rec.last(t)
	if got := req.Query["bounds"]; len(got) != 1 || got[0] != "0-10_20-30_40-50" {
		t.Fatalf("unexpected bounds %v", got)
	}
	if req.Method != http.MethodGet || len(req.Body) != 0 {
		t.Fatalf("leaves must be a bodiless GET")
	}
}

func TestChildrenRawPayload(t *testing.T) {
	var payload []byte
	for _, v := range []uint64{11, 12, 1 << 63} {
		payload = binary.LittleEndian.AppendUint64(payload, v)
	}
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/5/children": rawBody(payload),
		v1Prefix + "/node/6/children": rawBody(payload[:23]),
	})
	cli := newClient(t, srv)
	ctx := context.Background()

	children, err := cli.Children(ctx, 5)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 3 || children[0] != 11 || children[2] != 1<<63 {
		t.Fatalf("unexpected children %v", children)
	}
	req := rec.last(t)
	if req.Method != http.MethodPost || len(req.Body) != 0 {
		t.Fatalf("children must POST an empty body, got %s %q", req.Method, req.Body)
	}

	children, err = cli.Children(ctx, 6)
	var decErr *chunkedgraph.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if children != nil {
		t.Fatalf("partial result returned: %v", children)
	}
}

func TestContactSites(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/31/contact_sites": jsonBody(`{"101": {"area": 4}, "202": [[1, 2, 3]]}`),
	})
	cli := newClient(t, srv)
	ctx := context.Background()

	sites, err := cli.ContactSites(ctx, 31)
	if err != nil {
		t.Fatalf("contact sites: %v", err)
	}
	if len(sites) != 2 || string(sites[101]) != `{"area": 4}` || string(sites[202]) != `[[1, 2, 3]]` {
		t.Fatalf("unexpected sites %v", sites)
	}
	req := rec.last(t)
	if got := req.Query["partners"]; len(got) != 1 || got[0] != "False" {
		t.Fatalf("expected partners=False, got %v", got)
	}
	if string(req.Body) != "[31]" {
		t.Fatalf("expected body [31], got %s", req.Body)
	}

	bounds := chunkedgraph.NewBounds(-1, 1, -2, 2, -3, 3)
	if _, err := cli.ContactSites(ctx, 31, chunkedgraph.WithPartners(true), chunkedgraph.WithBounds(bounds)); err != nil {
		t.Fatalf("contact sites: %v", err)
	}
	req = rec.last(t)
	if got := req.Query["partners"]; len(got) != 1 || got[0] != "True" {
		t.Fatalf("expected partners=True, got %v", got)
	}
	if got := req.Query["bounds"]; len(got) != 1 || got[0] != "-1-1_-2-2_-3-3" {
		t.Fatalf("unexpected bounds %v", got)
	}
}

func TestLegacyVersionPaths(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		"/segmentation/1.0/fly_v31/graph/123/root": jsonBody(`{"root_id": "9"}`),
	})
	cli := newClient(t, srv, chunkedgraph.WithAPIVersion(chunkedgraph.V(0)))
	root, err := cli.RootID(context.Background(), 123)
	if err != nil {
		t.Fatalf("root id: %v", err)
	}
	if root != 9 {
		t.Fatalf("unexpected root %d", root)
	}
	if rec.last(t).Path != "/segmentation/1.0/fly_v31/graph/123/root" {
		t.Fatalf("unexpected path %q", rec.last(t).Path)
	}
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	srv, _ := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/1/root": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "boom")
		},
	})
	cli := newClient(t, srv)
	root, err := cli.RootID(context.Background(), 1)
	var httpErr *chunkedgraph.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusInternalServerError || string(httpErr.Body) != "boom" {
		t.Fatalf("unexpected error detail: %d %q", httpErr.Status, httpErr.Body)
	}
	if httpErr.Op != chunkedgraph.OpRootID {
		t.Fatalf("unexpected op %q", httpErr.Op)
	}
	if root != 0 {
		t.Fatalf("partial result returned: %d", root)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("status missing from message: %v", err)
	}
}

func TestTransportError(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cli := newClient(t, srv)
	srv.Close()
	_, err := cli.Children(context.Background(), 1)
	var httpErr *chunkedgraph.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Err == nil || httpErr.Status != 0 {
		t.Fatalf("expected transport failure, got status %d err %v", httpErr.Status, httpErr.Err)
	}
}

func TestHeaders(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/1/root": jsonBody(`{"root_id": 2}`),
	})
	cli := newClient(t, srv, chunkedgraph.WithAuth(auth.Token("secret")), chunkedgraph.WithUserAgent("tests/1"))
	ctx := chunkedgraph.WithCorrelationID(context.Background(), "cid-123")
	if _, err := cli.RootID(ctx, 1); err != nil {
		t.Fatalf("root id: %v", err)
	}
	req := rec.last(t)
	if got := req.Header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("unexpected authorization %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "tests/1" {
		t.Fatalf("unexpected user agent %q", got)
	}
	if got := req.Header.Get("X-Correlation-Id"); got != "cid-123" {
		t.Fatalf("unexpected correlation id %q", got)
	}

	anon := newClient(t, srv)
	if _, err := anon.RootID(context.Background(), 1); err != nil {
		t.Fatalf("root id: %v", err)
	}
	req = rec.last(t)
	if req.Header.Get("Authorization") != "" || req.Header.Get("X-Correlation-Id") != "" {
		t.Fatalf("unexpected headers on anonymous request: %v", req.Header)
	}
	if !strings.HasPrefix(req.Header.Get("User-Agent"), "caveclient-go/") {
		t.Fatalf("unexpected default user agent %q", req.Header.Get("User-Agent"))
	}
}

type failingAuth struct{}

func (failingAuth) RequestHeader() (map[string]string, error) {
	return nil, errors.New("no credentials")
}

func TestAuthProviderError(t *testing.T) {
	if _, err := chunkedgraph.New(chunkedgraph.WithAuth(failingAuth{})); err == nil {
		t.Fatalf("expected auth error")
	}
}

func TestDefaultFieldsAndEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cli := newClient(t, srv)
	fields := cli.DefaultFields()
	if v, _ := fields.Lookup(chunkedgraph.FieldTable); v != "fly_v31" {
		t.Fatalf("unexpected table field %q", v)
	}
	if v, _ := fields.Lookup(endpoints.ServerKey); v != srv.URL {
		t.Fatalf("unexpected server field %q", v)
	}
	eps := cli.Endpoints()
	eps[endpoints.HandleRoot] = "mutated"
	if cli.Endpoints()[endpoints.HandleRoot] == "mutated" {
		t.Fatalf("Endpoints must return a copy")
	}
	if got := cli.Endpoints()[endpoints.LeavesFromRoot]; got != srv.URL+v1Prefix+"/node/{root_id}/leaves" {
		t.Fatalf("unexpected leaves template %q", got)
	}
}

func TestNewNegotiated(t *testing.T) {
	srv, _ := newTestServer(t, map[string]func(http.ResponseWriter){
		"/segmentation/api/versions": jsonBody(`[0]`),
	})
	cli, err := chunkedgraph.NewNegotiated(context.Background(),
		chunkedgraph.WithServerAddress(srv.URL),
		chunkedgraph.WithTable("fly_v31"),
	)
	if err != nil {
		t.Fatalf("new negotiated: %v", err)
	}
	if cli.Version() != 0 {
		t.Fatalf("expected negotiated version 0, got %d", cli.Version())
	}

	pinned, err := chunkedgraph.NewNegotiated(context.Background(),
		chunkedgraph.WithServerAddress(srv.URL),
		chunkedgraph.WithAPIVersion(chunkedgraph.V(1)),
	)
	if err != nil {
		t.Fatalf("new negotiated: %v", err)
	}
	if pinned.Version() != 1 {
		t.Fatalf("explicit version must not be negotiated, got %d", pinned.Version())
	}
}

func TestConcurrentCalls(t *testing.T) {
	srv, rec := newTestServer(t, map[string]func(http.ResponseWriter){
		v1Prefix + "/node/1/root": jsonBody(`{"root_id": 2}`),
	})
	cli := newClient(t, srv)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cli.RootID(context.Background(), 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent root id: %v", err)
	}
	if rec.count() != 16 {
		t.Fatalf("expected 16 requests, got %d", rec.count())
	}
}
