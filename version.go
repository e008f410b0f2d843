package spellbook

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable dotted version such as 6.5.8. Missing components compare as zero,
// so 6.5 equals 6.5.0.
type Version struct {
	parts []int
}

// ParseVersion parses a dotted version string. A leading v is accepted, empty components are not.
func ParseVersion(s string) (v Version, err error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return v, fmt.Errorf("%w: empty version", ErrInvalidVersion)
	}
	fields := strings.Split(raw, ".")
	v.parts = make([]int, len(fields))
	for i, f := range fields {
		n, e := strconv.Atoi(f)
		if e != nil || strings.TrimLeft(f, "0123456789") != "" {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		v.parts[i] = n
	}
	return
}

// MustParseVersion is ParseVersion that panics on malformed input. Meant for rule tables.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	n := max(len(v.parts), len(o.parts))
	for i := 0; i < n; i++ {
		a, b := v.at(i), o.at(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) at(i int) int {
	if i < len(v.parts) {
		return v.parts[i]
	}
	return 0
}

func (v Version) Less(o Version) bool    { return v.Compare(o) < 0 }
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }
func (v Version) Equal(o Version) bool   { return v.Compare(o) == 0 }

// IsZero reports whether every component is zero, including the unparsed zero value.
func (v Version) IsZero() bool {
	for _, p := range v.parts {
		if p != 0 {
			return false
		}
	}
	return true
}

// Major, Minor and Patch return the first three components.
func (v Version) Major() int { return v.at(0) }
func (v Version) Minor() int { return v.at(1) }
func (v Version) Patch() int { return v.at(2) }

// Components returns a copy of the parsed components.
func (v Version) Components() []int {
	out := make([]int, len(v.parts))
	copy(out, v.parts)
	return out
}

func (v Version) String() string {
	if len(v.parts) == 0 {
		return "0"
	}
	s := make([]string, len(v.parts))
	for i, p := range v.parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ".")
}
