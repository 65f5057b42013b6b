package chunkedgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds is an axis-aligned box in voxel coordinates, ordered x, y, z with a
// (min, max) pair per axis. Ordering of min and max is not checked.
type Bounds [3][2]int64

// NewBounds builds a Bounds from per-axis extents.
func NewBounds(minX, maxX, minY, maxY, minZ, maxZ int64) Bounds {
	return Bounds{{minX, maxX}, {minY, maxY}, {minZ, maxZ}}
}

// Encode renders b in the service wire format "minx-maxx_miny-maxy_minz-maxz".
func (b Bounds) Encode() string {
	var sb strings.Builder
	for i, axis := range b {
		if i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(strconv.FormatInt(axis[0], 10))
		sb.WriteByte('-')
		sb.WriteString(strconv.FormatInt(axis[1], 10))
	}
	return sb.String()
}

func (b Bounds) String() string {
	return b.Encode()
}

// ParseBounds is the inverse of Encode.
func ParseBounds(s string) (Bounds, error) {
	var b Bounds
	axes := strings.Split(strings.TrimSpace(s), "_")
	if len(axes) != 3 {
		return b, fmt.Errorf("chunkedgraph: bounds %q: want 3 axes, got %d", s, len(axes))
	}
	for i, axis := range axes {
		// The separator is the first '-' after the leading character, so a
		// negative minimum keeps its sign.
		sep := -1
		if len(axis) > 1 {
			if idx := strings.IndexByte(axis[1:], '-'); idx >= 0 {
				sep = idx + 1
			}
		}
		if sep < 0 {
			return b, fmt.Errorf("chunkedgraph: bounds %q: axis %d %q is not min-max", s, i, axis)
		}
		lo, err := strconv.ParseInt(axis[:sep], 10, 64)
		if err != nil {
			return b, fmt.Errorf("chunkedgraph: bounds %q: axis %d min: %w", s, i, err)
		}
		hi, err := strconv.ParseInt(axis[sep+1:], 10, 64)
		if err != nil {
			return b, fmt.Errorf("chunkedgraph: bounds %q: axis %d max: %w", s, i, err)
		}
		b[i] = [2]int64{lo, hi}
	}
	return b, nil
}
