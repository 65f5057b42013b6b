package chunkedgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/sumiya-kuroda/CAVEclient/endpoints"
)

// EndpointSet is the template set of one API version with the server address
// already substituted.
type EndpointSet struct {
	version   int
	templates map[string]Template
}

// Version is the API version the set was resolved for.
func (s EndpointSet) Version() int {
	return s.version
}

// Lookup returns the template registered for op.
func (s EndpointSet) Lookup(op string) (Template, bool) {
	t, ok := s.templates[op]
	return t, ok
}

// Names lists the operations in the set, sorted.
func (s EndpointSet) Names() []string {
	return slices.Sorted(maps.Keys(s.templates))
}

// Strings renders every template back to its string form.
func (s EndpointSet) Strings() map[string]string {
	out := make(map[string]string, len(s.templates))
	for name, t := range s.templates {
		out[name] = t.String()
	}
	return out
}

// Resolve selects the templates for requested from reg and substitutes
// serverAddress. Templates of the version take precedence over common ones.
// Resolve performs no I/O.
func Resolve(requested Version, reg endpoints.Registry, serverAddress string) (EndpointSet, int, error) {
	available := reg.VersionList()
	var version int
	if requested.IsLatest() {
		latest, ok := reg.Latest()
		if !ok {
			return EndpointSet{}, 0, &ConfigurationError{
				Requested: requested,
				Reason:    "endpoint registry has no api versions",
				Err:       ErrUnsupportedVersion,
			}
		}
		version = latest
	} else {
		version, _ = requested.Number()
		if _, ok := reg.Versions[version]; !ok {
			return EndpointSet{}, 0, &ConfigurationError{
				Requested: requested,
				Available: available,
				Err:       ErrUnsupportedVersion,
			}
		}
	}

	merged := reg.Common.Clone()
	maps.Copy(merged, reg.Versions[version])

	server := NewFields(endpoints.ServerKey, normalizeServerAddress(serverAddress))
	set := EndpointSet{version: version, templates: make(map[string]Template, len(merged))}
	for name, raw := range merged {
		t, err := ParseTemplate(raw)
		if err != nil {
			return EndpointSet{}, 0, err
		}
		set.templates[name] = t.Partial(server)
	}
	return set, version, nil
}

func normalizeServerAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = endpoints.DefaultServerAddress
	}
	return strings.TrimRight(addr, "/")
}

// NegotiateVersion asks the server which API versions it supports and
// returns the highest one shared with reg. When the registry has no
// version-listing endpoint, or the probe fails for any reason, the registry
// maximum is returned. A server that shares no version with reg yields a
// *ConfigurationError.
func NegotiateVersion(ctx context.Context, hc *http.Client, reg endpoints.Registry, serverAddress string, header map[string]string) (int, error) {
	latest, ok := reg.Latest()
	if !ok {
		return 0, &ConfigurationError{Requested: Latest, Reason: "endpoint registry has no api versions", Err: ErrUnsupportedVersion}
	}
	served, err := probeVersions(ctx, hc, reg, serverAddress, header)
	if err != nil || served == nil {
		return latest, nil
	}
	best := -1
	for _, v := range served {
		if _, ok := reg.Versions[v]; ok && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, &ConfigurationError{
			Requested: Latest,
			Available: reg.VersionList(),
			Reason:    fmt.Sprintf("server versions %v not supported by client", served),
			Err:       ErrUnsupportedVersion,
		}
	}
	return best, nil
}

// probeVersions returns nil, nil when the registry has no probe endpoint.
func probeVersions(ctx context.Context, hc *http.Client, reg endpoints.Registry, serverAddress string, header map[string]string) ([]int, error) {
	raw, ok := reg.Common[endpoints.GetAPIVersions]
	if !ok {
		return nil, nil
	}
	t, err := ParseTemplate(raw)
	if err != nil {
		return nil, err
	}
	target, err := t.Expand(NewFields(endpoints.ServerKey, normalizeServerAddress(serverAddress)))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Op: endpoints.GetAPIVersions, Method: req.Method, URL: target, Status: resp.StatusCode, Body: body}
	}
	var versions []int
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, &DecodeError{Op: endpoints.GetAPIVersions, Reason: "expected JSON array of integers", Body: body, Err: err}
	}
	return versions, nil
}
