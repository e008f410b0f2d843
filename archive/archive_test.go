package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZenLiuCN/fn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dex builds a minimal dex whose class defs list classes in order. Type ids are stored
// reversed so lookups must go through the type table.
func dex(classes ...string) []byte {
	n := uint32(len(classes))
	var (
		stringsOff = uint32(dexHeaderSize)
		typesOff   = stringsOff + 4*n
		classesOff = typesOff + 4*n
		dataOff    = classesOff + classDefSize*n
	)
	b := make([]byte, dataOff)
	copy(b, "dex\n035\x00")
	le := binary.LittleEndian
	le.PutUint32(b[0x28:], 0x12345678)
	le.PutUint32(b[0x38:], n)
	le.PutUint32(b[0x3C:], stringsOff)
	le.PutUint32(b[0x40:], n)
	le.PutUint32(b[0x44:], typesOff)
	le.PutUint32(b[0x60:], n)
	le.PutUint32(b[0x64:], classesOff)
	for i, c := range classes {
		desc := "L" + strings.ReplaceAll(c, ".", "/") + ";"
		le.PutUint32(b[stringsOff+4*uint32(i):], uint32(len(b)))
		b = binary.AppendUvarint(b, uint64(len(desc)))
		b = append(b, desc...)
		b = append(b, 0)
		typeIdx := n - 1 - uint32(i)
		le.PutUint32(b[typesOff+4*typeIdx:], uint32(i))
		le.PutUint32(b[classesOff+classDefSize*uint32(i):], typeIdx)
	}
	return b
}

func writeZip(t *testing.T, name string, entries map[string][]byte) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	f := fn.Panic1(os.Create(file))
	defer fn.IgnoreClose(f)
	w := zip.NewWriter(f)
	for n, data := range entries {
		e := fn.Panic1(w.Create(n))
		fn.Panic1(e.Write(data))
	}
	fn.Panic(w.Close())
	return file
}

func TestDexClasses(t *testing.T) {
	names, err := DexClasses(dex("com.host.storage.Storage", "com.host.App", "a.b$Inner"))
	require.NoError(t, err)
	assert.Equal(t, []string{"com.host.storage.Storage", "com.host.App", "a.b$Inner"}, names)

	names, err = DexClasses(dex())
	require.NoError(t, err)
	assert.Empty(t, names)

	// long descriptors take a multi byte length
	long := "com.host." + strings.Repeat("x", 300)
	names, err = DexClasses(dex(long))
	require.NoError(t, err)
	assert.Equal(t, []string{long}, names)
}

func TestDexCorrupt(t *testing.T) {
	valid := dex("a.B", "a.C")
	mutate := func(f func(b []byte) []byte) []byte {
		b := bytes.Clone(valid)
		return f(b)
	}
	le := binary.LittleEndian
	for name, b := range map[string][]byte{
		"short":      valid[:0x20],
		"magic":      mutate(func(b []byte) []byte { b[0] = 'x'; return b }),
		"endian":     mutate(func(b []byte) []byte { le.PutUint32(b[0x28:], 0x78563412); return b }),
		"strings":    mutate(func(b []byte) []byte { le.PutUint32(b[0x3C:], 0xFFFFFF00); return b }),
		"class type": mutate(func(b []byte) []byte { le.PutUint32(b[le.Uint32(b[0x64:]):], 9); return b }),
		"type str":   mutate(func(b []byte) []byte { le.PutUint32(b[le.Uint32(b[0x44:]):], 9); return b }),
		"str offset": mutate(func(b []byte) []byte { le.PutUint32(b[le.Uint32(b[0x3C:]):], 1<<30); return b }),
		"truncated":  mutate(func(b []byte) []byte { return b[:len(b)-1] }),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DexClasses(b)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestZipClasses(t *testing.T) {
	file := writeZip(t, "host.apk", map[string][]byte{
		"classes.dex":                dex("com.host.App", "com.host.storage.Storage"),
		"classes2.dex":               dex("com.host.storage.MsgInfo", "com.host.App"),
		"assets/classes.dex":         []byte("not a dex, not at the root"),
		"lib/Extra.class":            {0xCA, 0xFE},
		"META-INF/module-info.class": {0xCA, 0xFE},
		"res/layout.xml":             nil,
	})
	names, err := Classes(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.host.App", "com.host.storage.MsgInfo", "com.host.storage.Storage", "lib.Extra"}, names)

	_, err = Classes(writeZip(t, "empty.jar", map[string][]byte{"README": []byte("hi")}))
	require.ErrorIs(t, err, ErrNoClasses)

	_, err = Classes(writeZip(t, "bad.apk", map[string][]byte{"classes.dex": []byte("dex\n")}))
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = Classes(filepath.Join(t.TempDir(), "missing.apk"))
	require.Error(t, err)
}

func TestManifestVersion(t *testing.T) {
	for manifest, want := range map[string]string{
		"Manifest-Version: 1.0\r\nVersion-Name: 6.7.3\r\n":                "6.7.3",
		"Implementation-Version: 6.5.8\nBundle-Version: 1\n":             "6.5.8",
		"Bundle-Version: 2.1\n":                                          "2.1",
		"Version-Name: 6.7.\n 3\nImplementation-Version: 1\n":             "6.7.3",
		"Implementation-Version: 1\nVersion-Name:   7.0.1  \n\nName: x\n": "7.0.1",
	} {
		got, err := ParseManifestVersion(strings.NewReader(manifest))
		require.NoError(t, err, manifest)
		assert.Equal(t, want, got, manifest)
	}
	_, err := ParseManifestVersion(strings.NewReader("Manifest-Version: 1.0\n"))
	require.ErrorIs(t, err, ErrNoVersion)

	file := writeZip(t, "host.jar", map[string][]byte{ManifestPath: []byte("Version-Name: 6.0.0\n")})
	v, err := ManifestVersion(file)
	require.NoError(t, err)
	assert.Equal(t, "6.0.0", v)

	_, err = ManifestVersion(writeZip(t, "bare.jar", map[string][]byte{"a.class": nil}))
	require.ErrorIs(t, err, ErrNoVersion)
	_, err = ManifestVersion("")
	require.ErrorIs(t, err, ErrNoVersion)
}

func TestSymbolClasses(t *testing.T) {
	names := SymbolClasses([]string{
		"type:host.Storage",
		"type:*host.Storage",
		"type:[]host.MsgInfo",
		"type:int",
		"type.host.Session",
		"host.(*Storage).Insert",
		"host.(*Config).Load",
		"host.Run",
		"go:buildid",
	})
	assert.Equal(t, []string{"host.Config", "host.Session", "host.Storage"}, names)
}

// testdata/host.o is produced by go generate in testdata.
func TestObjectClasses(t *testing.T) {
	const object = "testdata/host.o"
	if _, err := os.Stat(object); err != nil {
		t.Skip("object not generated")
	}
	names, err := Classes(object)
	require.NoError(t, err)
	t.Log(names)
	assert.Contains(t, names, "host.Storage")
	assert.Contains(t, names, "host.MsgInfo")
}
