// Package endpoints holds the URL templates of the chunked-graph service,
// keyed by API version.
//
// Templates use named placeholders in braces, for example
// "{cg_server_address}/segmentation/api/v1/table/{table_id}/node/{root_id}/leaves".
// The built-in registry matches the public chunked-graph deployments; a YAML
// override can be loaded with Load or LoadFile.
package endpoints

import (
	"maps"
	"slices"
)

// DefaultServerAddress is used when no server address is configured.
const DefaultServerAddress = "https://www.dynamicannotationframework.com"

// ServerKey is the placeholder that carries the server base address.
const ServerKey = "cg_server_address"

// Operation names shared by every API version.
const (
	GetAPIVersions  = "get_api_versions"
	HandleRoot      = "handle_root"
	HandleChildren  = "handle_children"
	LeavesFromRoot  = "leaves_from_root"
	MergeLog        = "merge_log"
	ChangeLog       = "change_log"
	ContactSites    = "contact_sites"
	CloudVolumePath = "cloudvolume_path"
)

// Templates maps an operation name to its URL template.
type Templates map[string]string

// Clone returns an independent copy of t.
func (t Templates) Clone() Templates {
	if t == nil {
		return Templates{}
	}
	return maps.Clone(t)
}

// Registry is the full set of templates known to the client.
type Registry struct {
	Common   Templates
	Versions map[int]Templates
}

// Clone returns a deep copy of r.
func (r Registry) Clone() Registry {
	out := Registry{
		Common:   r.Common.Clone(),
		Versions: make(map[int]Templates, len(r.Versions)),
	}
	for v, t := range r.Versions {
		out.Versions[v] = t.Clone()
	}
	return out
}

// VersionList returns the registered API versions in ascending order.
func (r Registry) VersionList() []int {
	return slices.Sorted(maps.Keys(r.Versions))
}

// Latest reports the highest registered API version.
func (r Registry) Latest() (int, bool) {
	versions := r.VersionList()
	if len(versions) == 0 {
		return 0, false
	}
	return versions[len(versions)-1], true
}

// Restrict returns a copy of r holding only the versions listed in keep.
func (r Registry) Restrict(keep []int) Registry {
	out := Registry{
		Common:   r.Common.Clone(),
		Versions: make(map[int]Templates),
	}
	for _, v := range keep {
		if t, ok := r.Versions[v]; ok {
			out.Versions[v] = t.Clone()
		}
	}
	return out
}

const (
	legacyBase = "{cg_server_address}/segmentation/1.0/{table_id}"
	v1Base     = "{cg_server_address}/segmentation/api/v1/table/{table_id}"
)

// ChunkedGraph returns the built-in chunked-graph registry. The caller owns
// the returned value.
func ChunkedGraph() Registry {
	return Registry{
		Common: Templates{
			GetAPIVersions: "{cg_server_address}/segmentation/api/versions",
		},
		Versions: map[int]Templates{
			0: {
				HandleRoot:      legacyBase + "/graph/{supervoxel_id}/root",
				HandleChildren:  legacyBase + "/segment/{node_id}/children",
				LeavesFromRoot:  legacyBase + "/segment/{root_id}/leaves",
				MergeLog:        legacyBase + "/segment/{root_id}/merge_log",
				ChangeLog:       legacyBase + "/segment/{root_id}/change_log",
				ContactSites:    legacyBase + "/segment/{root_id}/contact_sites",
				CloudVolumePath: "graphene://{cg_server_address}/segmentation/1.0/{table_id}",
			},
			1: {
				HandleRoot:      v1Base + "/node/{supervoxel_id}/root",
				HandleChildren:  v1Base + "/node/{node_id}/children",
				LeavesFromRoot:  v1Base + "/node/{root_id}/leaves",
				MergeLog:        v1Base + "/root/{root_id}/merge_log",
				ChangeLog:       v1Base + "/root/{root_id}/change_log",
				ContactSites:    v1Base + "/node/{root_id}/contact_sites",
				CloudVolumePath: "graphene://{cg_server_address}/segmentation/table/{table_id}",
			},
		},
	}
}
