package version

// Range is an inclusive version range. The zero Range is empty.
type Range struct {
	Min Version
	Max Version
}

// NewRange builds a range from two version strings.
func NewRange(min, max string) Range {
	return Range{Min: Parse(min), Max: Parse(max)}
}

// RangeOf returns the smallest range containing every non-empty version in
// versions. It is empty when no such version exists.
func RangeOf(versions []string) Range {
	var r Range
	for _, s := range versions {
		v := Parse(s)
		if v.IsEmpty() {
			continue
		}
		if r.IsEmpty() {
			r = Range{Min: v, Max: v}
			continue
		}
		if v.Less(r.Min) {
			r.Min = v
		}
		if r.Max.Less(v) {
			r.Max = v
		}
	}
	return r
}

// IsEmpty reports whether the range holds no versions.
func (r Range) IsEmpty() bool {
	return r.Min.IsEmpty() && r.Max.IsEmpty()
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v Version) bool {
	if r.IsEmpty() {
		return false
	}
	return r.Min.Compare(v) <= 0 && v.Compare(r.Max) <= 0
}

// Overlaps reports whether the two ranges share at least one version.
// Empty ranges overlap nothing.
func (r Range) Overlaps(o Range) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.Min.Compare(o.Max) <= 0 && o.Min.Compare(r.Max) <= 0
}

func (r Range) String() string {
	if r.IsEmpty() {
		return "[]"
	}
	return "[" + r.Min.String() + ", " + r.Max.String() + "]"
}
