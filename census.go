package spellbook

import (
	"sort"
	"strings"
)

// Census is the ordered list of class names compiled into the host archive.
type Census []ClassName

// NewCensus builds a sorted, deduplicated Census.
func NewCensus(names []string) Census {
	c := make(Census, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		c = append(c, ClassName(n))
	}
	sort.Slice(c, func(i, j int) bool { return c[i] < c[j] })
	return c
}

// InPackage returns the classes under pkg. depth 0 keeps only direct members of pkg,
// depth n also accepts n levels of sub packages, a negative depth accepts any.
func (c Census) InPackage(pkg string, depth int) Census {
	prefix := pkg + "."
	var out Census
	for _, n := range c {
		s := string(n)
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		if depth >= 0 && strings.Count(s[len(prefix):], ".") > depth {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Named returns the classes whose simple name is simple.
func (c Census) Named(simple string) Census {
	return c.Filter(func(n ClassName) bool { return n.Simple() == simple })
}

func (c Census) Filter(keep func(ClassName) bool) Census {
	var out Census
	for _, n := range c {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// Contains uses binary search, the Census must be sorted as NewCensus leaves it.
func (c Census) Contains(name ClassName) bool {
	i := sort.Search(len(c), func(i int) bool { return c[i] >= name })
	return i < len(c) && c[i] == name
}
