package chunkedgraph

import (
	"maps"
	"slices"
	"strconv"
)

// Field names used by the built-in templates.
const (
	FieldTable      = "table_id"
	FieldSupervoxel = "supervoxel_id"
	FieldRoot       = "root_id"
	FieldNode       = "node_id"
)

// Fields is an immutable set of template placeholder values. Every method
// that changes the set returns a new value; the receiver is never modified,
// so a Fields can be shared freely between goroutines.
type Fields struct {
	m map[string]string
}

// NewFields builds a Fields from key/value pairs. A trailing key without a
// value is ignored.
func NewFields(kv ...string) Fields {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return Fields{m: m}
}

// With returns a copy of f with key set to value.
func (f Fields) With(key, value string) Fields {
	m := make(map[string]string, len(f.m)+1)
	maps.Copy(m, f.m)
	m[key] = value
	return Fields{m: m}
}

// WithID returns a copy of f with key set to the decimal form of id.
func (f Fields) WithID(key string, id uint64) Fields {
	return f.With(key, strconv.FormatUint(id, 10))
}

// Merge returns a copy of f overlaid with other; other wins on collisions.
func (f Fields) Merge(other Fields) Fields {
	m := make(map[string]string, len(f.m)+len(other.m))
	maps.Copy(m, f.m)
	maps.Copy(m, other.m)
	return Fields{m: m}
}

// Lookup returns the value bound to key.
func (f Fields) Lookup(key string) (string, bool) {
	v, ok := f.m[key]
	return v, ok
}

// Len reports the number of bound fields.
func (f Fields) Len() int {
	return len(f.m)
}

// Keys returns the bound field names in sorted order.
func (f Fields) Keys() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Map returns a copy of the bound values.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f.m))
	maps.Copy(out, f.m)
	return out
}
