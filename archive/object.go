package archive

import (
	"sort"
	"strings"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
)

// ObjectClasses lists the named types defined in a Go object file or archive of package pkgPath ("main" when empty).
func ObjectClasses(file, pkgPath string) ([]string, error) {
	if pkgPath == "" {
		pkgPath = "main"
	}
	syms, err := goloader.Parse(file, pkgPath)
	if err != nil {
		return nil, err
	}
	names := SymbolClasses(syms)
	if len(names) == 0 {
		return nil, ErrNoClasses
	}
	return names, nil
}

// SymbolClasses extracts named types from linker symbol names such as
// "type:sample.proto", "sample.(*proto).Name" and "sample.proto.Action".
func SymbolClasses(syms []string) []string {
	seen := make(map[string]struct{})
	for _, s := range syms {
		if n := symbolType(s); n != "" {
			seen[n] = struct{}{}
		}
	}
	names := fn.MapKeys(seen)
	sort.Strings(names)
	return names
}

func symbolType(s string) string {
	for _, p := range []string{"type:", "type."} {
		if strings.HasPrefix(s, p) {
			t := strings.TrimPrefix(s, p)
			if strings.ContainsAny(t, "*[]{}() ,") || strings.IndexByte(t, '.') < 0 {
				return ""
			}
			return t
		}
	}
	// pointer receiver methods: pkg.(*T).M
	if i := strings.Index(s, ".(*"); i > 0 {
		if j := strings.Index(s[i:], ")."); j > 0 {
			return s[:i] + "." + s[i+3:i+j]
		}
	}
	return ""
}
