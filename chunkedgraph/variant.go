package chunkedgraph

import (
	"net/http"

	"github.com/sumiya-kuroda/CAVEclient/endpoints"
)

// bodyKind describes what an operation sends as its request body.
type bodyKind int

const (
	bodyNone bodyKind = iota
	// bodyEmpty posts without payload.
	bodyEmpty
	// bodyRootList posts the JSON array [root_id].
	bodyRootList
)

type operationSpec struct {
	endpoint string
	method   string
	body     bodyKind
}

// variant carries the conventions of one API major version. The set of
// variants is closed: support for a new version is added by writing a new
// type and a case in variantFor.
type variant interface {
	apiVersion() int
	operation(name string) (operationSpec, bool)
}

// Operation names exposed in errors, logs and telemetry.
const (
	OpRootID          = "root_id"
	OpMergeLog        = "merge_log"
	OpChangeLog       = "change_log"
	OpLeaves          = "leaves"
	OpChildren        = "children"
	OpContactSites    = "contact_sites"
	OpCloudVolumePath = "cloudvolume_path"
)

// legacyAPI is the segmentation/1.0 API (version 0).
type legacyAPI struct{}

func (legacyAPI) apiVersion() int { return 0 }

func (legacyAPI) operation(name string) (operationSpec, bool) {
	spec, ok := legacyOperations[name]
	return spec, ok
}

var legacyOperations = map[string]operationSpec{
	OpRootID:          {endpoint: endpoints.HandleRoot, method: http.MethodGet, body: bodyNone},
	OpMergeLog:        {endpoint: endpoints.MergeLog, method: http.MethodPost, body: bodyRootList},
	OpChangeLog:       {endpoint: endpoints.ChangeLog, method: http.MethodPost, body: bodyRootList},
	OpLeaves:          {endpoint: endpoints.LeavesFromRoot, method: http.MethodGet, body: bodyNone},
	OpChildren:        {endpoint: endpoints.HandleChildren, method: http.MethodPost, body: bodyEmpty},
	OpContactSites:    {endpoint: endpoints.ContactSites, method: http.MethodPost, body: bodyRootList},
	OpCloudVolumePath: {endpoint: endpoints.CloudVolumePath},
}

// v1API is the segmentation/api/v1 API. It keeps the request and response
// conventions of the legacy API under new paths.
type v1API struct{}

func (v1API) apiVersion() int { return 1 }

func (v1API) operation(name string) (operationSpec, bool) {
	spec, ok := v1Operations[name]
	return spec, ok
}

var v1Operations = map[string]operationSpec{
	OpRootID:          {endpoint: endpoints.HandleRoot, method: http.MethodGet, body: bodyNone},
	OpMergeLog:        {endpoint: endpoints.MergeLog, method: http.MethodPost, body: bodyRootList},
	OpChangeLog:       {endpoint: endpoints.ChangeLog, method: http.MethodPost, body: bodyRootList},
	OpLeaves:          {endpoint: endpoints.LeavesFromRoot, method: http.MethodGet, body: bodyNone},
	OpChildren:        {endpoint: endpoints.HandleChildren, method: http.MethodPost, body: bodyEmpty},
	OpContactSites:    {endpoint: endpoints.ContactSites, method: http.MethodPost, body: bodyRootList},
	OpCloudVolumePath: {endpoint: endpoints.CloudVolumePath},
}

// variantFor returns the variant implementing version.
func variantFor(version int) (variant, error) {
	switch version {
	case 0:
		return legacyAPI{}, nil
	case 1:
		return v1API{}, nil
	}
	return nil, &ConfigurationError{
		Requested: V(version),
		Available: SupportedVersions(),
		Reason:    "no client implementation for api version " + V(version).String(),
		Err:       ErrUnsupportedVersion,
	}
}

// SupportedVersions lists the API versions this package implements.
func SupportedVersions() []int {
	return []int{0, 1}
}
