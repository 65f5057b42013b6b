package endpoints

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sumiya-kuroda/CAVEclient/internal/pathutil"
)

type registryFile struct {
	// Extend keeps the built-in templates and overlays the file on top.
	Extend   bool                      `yaml:"extend"`
	Common   map[string]string         `yaml:"common"`
	Versions map[int]map[string]string `yaml:"versions"`
}

// Load decodes a YAML registry document:
//
//	extend: true
//	common:
//	  get_api_versions: "{cg_server_address}/segmentation/api/versions"
//	versions:
//	  1:
//	    handle_root: "{cg_server_address}/segmentation/api/v1/table/{table_id}/node/{supervoxel_id}/root"
//
// With extend set, entries are merged over ChunkedGraph(); otherwise the
// document replaces the built-in registry entirely.
func Load(r io.Reader) (Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Registry{}, fmt.Errorf("endpoints: read registry: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Registry{}, errors.New("endpoints: empty registry document")
	}
	var doc registryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Registry{}, fmt.Errorf("endpoints: parse registry: %w", err)
	}
	reg := Registry{Common: Templates{}, Versions: map[int]Templates{}}
	if doc.Extend {
		reg = ChunkedGraph()
	}
	for name, tmpl := range doc.Common {
		reg.Common[name] = tmpl
	}
	for v, tmpls := range doc.Versions {
		if v < 0 {
			return Registry{}, fmt.Errorf("endpoints: negative api version %d", v)
		}
		dst, ok := reg.Versions[v]
		if !ok {
			dst = Templates{}
			reg.Versions[v] = dst
		}
		for name, tmpl := range tmpls {
			dst[name] = tmpl
		}
	}
	if len(reg.Versions) == 0 {
		return Registry{}, errors.New("endpoints: registry defines no api versions")
	}
	return reg, nil
}

// LoadFile reads a registry document from path. "~" and environment
// variables in path are expanded.
func LoadFile(path string) (Registry, error) {
	expanded, err := pathutil.ExpandUserAndEnv(path)
	if err != nil {
		return Registry{}, fmt.Errorf("endpoints: expand %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return Registry{}, fmt.Errorf("endpoints: open registry: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Marshal renders r as a YAML registry document accepted by Load.
func Marshal(r Registry) ([]byte, error) {
	doc := registryFile{
		Common:   map[string]string(r.Common.Clone()),
		Versions: make(map[int]map[string]string, len(r.Versions)),
	}
	for v, t := range r.Versions {
		doc.Versions[v] = map[string]string(t.Clone())
	}
	return yaml.Marshal(doc)
}
