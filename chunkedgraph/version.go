package chunkedgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Version selects an API version: Latest or an explicit number.
type Version struct {
	n     int
	fixed bool
}

// Latest resolves to the highest version in the endpoint registry.
var Latest = Version{}

// V returns the explicit API version n.
func V(n int) Version {
	return Version{n: n, fixed: true}
}

// ParseVersion accepts "latest" (or "") and non-negative integers.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "latest" {
		return Latest, nil
	}
	s = strings.TrimPrefix(s, "v")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Version{}, fmt.Errorf("chunkedgraph: invalid api version %q", s)
	}
	return V(n), nil
}

// IsLatest reports whether v defers to the registry maximum.
func (v Version) IsLatest() bool {
	return !v.fixed
}

// Number returns the explicit version number.
func (v Version) Number() (int, bool) {
	return v.n, v.fixed
}

func (v Version) String() string {
	if !v.fixed {
		return "latest"
	}
	return strconv.Itoa(v.n)
}
