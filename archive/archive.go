// Package archive reads the class census and version metadata of an installed application archive.
//
// Supported inputs:
//
//   - zip based archives (.apk, .jar, .zip): every classes*.dex entry is parsed and every .class entry is named
//   - Go relocatable objects and archives (.o, .a): type symbols, parsed with [goloader]
//
// [goloader]: https://github.com/pkujhd/goloader
package archive

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZenLiuCN/fn"
)

var (
	// ErrNoClasses occurs when an archive holds no class index at all.
	ErrNoClasses = errors.New("archive holds no classes")
	// ErrNoVersion occurs when the manifest carries no version attribute.
	ErrNoVersion = errors.New("manifest holds no version")
	// ErrCorrupt occurs on malformed class indexes.
	ErrCorrupt = errors.New("corrupt class index")
)

// ManifestPath is the manifest entry read by ManifestVersion.
const ManifestPath = "META-INF/MANIFEST.MF"

// VersionAttributes are the manifest attributes tried in order.
var VersionAttributes = []string{"Version-Name", "Implementation-Version", "Bundle-Version"}

// Classes lists the fully qualified class names compiled into the archive at file, sorted and deduplicated.
func Classes(file string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".o", ".a":
		return ObjectClasses(file, "")
	default:
		return ZipClasses(file)
	}
}

// ZipClasses lists the classes of a zip based archive.
func ZipClasses(file string) (names []string, err error) {
	r, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer fn.IgnoreClose(r)
	seen := make(map[string]struct{})
	dexes := 0
	for _, f := range r.File {
		switch {
		case isDex(f.Name):
			dexes++
			var found []string
			if found, err = readDexEntry(f); err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			for _, n := range found {
				seen[n] = struct{}{}
			}
		case strings.HasSuffix(f.Name, ".class") && !strings.HasSuffix(f.Name, "module-info.class"):
			seen[strings.ReplaceAll(strings.TrimSuffix(f.Name, ".class"), "/", ".")] = struct{}{}
		}
	}
	if len(seen) == 0 && dexes == 0 {
		return nil, ErrNoClasses
	}
	names = fn.MapKeys(seen)
	sort.Strings(names)
	return
}

func isDex(name string) bool {
	base := path.Base(name)
	return name == base && strings.HasPrefix(base, "classes") && strings.HasSuffix(base, ".dex")
}

func readDexEntry(f *zip.File) ([]string, error) {
	if f.UncompressedSize64 > maxDexSize {
		return nil, fmt.Errorf("%w: dex of %d bytes", ErrCorrupt, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer fn.IgnoreClose(rc)
	b, err := io.ReadAll(io.LimitReader(rc, maxDexSize+1))
	if err != nil {
		return nil, err
	}
	return DexClasses(b)
}

// ManifestVersion reads the host version from the manifest of a zip based archive.
func ManifestVersion(file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("%w: no archive", ErrNoVersion)
	}
	r, err := zip.OpenReader(file)
	if err != nil {
		return "", err
	}
	defer fn.IgnoreClose(r)
	for _, f := range r.File {
		if f.Name != ManifestPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer fn.IgnoreClose(rc)
		return ParseManifestVersion(rc)
	}
	return "", fmt.Errorf("%w: %s missing", ErrNoVersion, ManifestPath)
}

// ParseManifestVersion returns the first of VersionAttributes found in a manifest.
func ParseManifestVersion(r io.Reader) (string, error) {
	attrs := make(map[string]string)
	sc := bufio.NewScanner(r)
	var last string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, " ") && last != "" {
			attrs[last] += line[1:]
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			last = ""
			continue
		}
		last = strings.TrimSpace(k)
		attrs[last] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	for _, a := range VersionAttributes {
		if v := attrs[a]; v != "" {
			return v, nil
		}
	}
	return "", ErrNoVersion
}
