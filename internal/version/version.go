// Package version parses and orders package version strings.
//
// A version is a dot separated list of parts. Each part is a leading unsigned
// integer followed by an optional suffix ("0-beta" is 0 with suffix "-beta").
// Parts are compared numerically first; on a tie a part without a suffix sorts
// after one with a suffix, so "1.2.0" > "1.2.0-rc". Trailing zero parts are
// insignificant ("1.0" == "1"). The original text is always preserved.
package version

import (
	"strconv"
	"strings"
)

// Part is one dot separated component of a Version.
type Part struct {
	Integer uint64
	Other   string
}

// Version is a parsed version string.
type Version struct {
	raw   string
	parts []Part
}

// Parse parses s. Parsing never fails; unparseable text ends up in suffixes.
func Parse(s string) Version {
	v := Version{raw: s}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return v
	}

	for _, piece := range strings.Split(trimmed, ".") {
		v.parts = append(v.parts, parsePart(piece))
	}

	// Drop insignificant trailing zeros.
	for len(v.parts) > 0 {
		last := v.parts[len(v.parts)-1]
		if last.Integer != 0 || last.Other != "" {
			break
		}
		v.parts = v.parts[:len(v.parts)-1]
	}
	return v
}

func parsePart(piece string) Part {
	piece = strings.TrimSpace(piece)
	i := 0
	for i < len(piece) && piece[i] >= '0' && piece[i] <= '9' {
		i++
	}
	if i == 0 {
		return Part{Other: piece}
	}
	n, err := strconv.ParseUint(piece[:i], 10, 64)
	if err != nil {
		// Too large to be a number; keep it orderable as text.
		return Part{Other: piece}
	}
	return Part{Integer: n, Other: piece[i:]}
}

// String returns the text the version was parsed from.
func (v Version) String() string {
	return v.raw
}

// IsEmpty reports whether the version has no significant content.
func (v Version) IsEmpty() bool {
	return strings.TrimSpace(v.raw) == ""
}

// Parts returns the significant parts of the version.
func (v Version) Parts() []Part {
	return v.parts
}

// Compare returns -1, 0 or 1 as v is less than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	n := len(v.parts)
	if len(o.parts) > n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		var a, b Part
		if i < len(v.parts) {
			a = v.parts[i]
		}
		if i < len(o.parts) {
			b = o.parts[i]
		}
		if c := comparePart(a, b); c != 0 {
			return c
		}
	}
	return 0
}

func comparePart(a, b Part) int {
	switch {
	case a.Integer < b.Integer:
		return -1
	case a.Integer > b.Integer:
		return 1
	}

	switch {
	case a.Other == b.Other:
		return 0
	case a.Other == "":
		return 1
	case b.Other == "":
		return -1
	}

	la, lb := strings.ToLower(a.Other), strings.ToLower(b.Other)
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Equal reports whether v and o are the same version, ignoring text differences
// such as trailing zeros.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Compare parses and compares two version strings.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}
