package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	maxDexSize    = 1 << 30
	dexHeaderSize = 0x70
	classDefSize  = 32
)

// DexClasses returns the classes defined in a dex file, in definition order.
func DexClasses(b []byte) ([]string, error) {
	if len(b) < dexHeaderSize || !bytes.HasPrefix(b, []byte("dex\n")) {
		return nil, fmt.Errorf("%w: bad dex magic", ErrCorrupt)
	}
	le := binary.LittleEndian
	if tag := le.Uint32(b[0x28:]); tag != 0x12345678 {
		return nil, fmt.Errorf("%w: unsupported endian tag %#x", ErrCorrupt, tag)
	}
	var (
		stringsSize = le.Uint32(b[0x38:])
		stringsOff  = le.Uint32(b[0x3C:])
		typesSize   = le.Uint32(b[0x40:])
		typesOff    = le.Uint32(b[0x44:])
		classesSize = le.Uint32(b[0x60:])
		classesOff  = le.Uint32(b[0x64:])
	)
	if !within(b, stringsOff, stringsSize, 4) || !within(b, typesOff, typesSize, 4) || !within(b, classesOff, classesSize, classDefSize) {
		return nil, fmt.Errorf("%w: section out of bounds", ErrCorrupt)
	}
	names := make([]string, 0, classesSize)
	for i := uint32(0); i < classesSize; i++ {
		typeIdx := le.Uint32(b[classesOff+i*classDefSize:])
		if typeIdx >= typesSize {
			return nil, fmt.Errorf("%w: class %d has type %d of %d", ErrCorrupt, i, typeIdx, typesSize)
		}
		strIdx := le.Uint32(b[typesOff+typeIdx*4:])
		if strIdx >= stringsSize {
			return nil, fmt.Errorf("%w: type %d has string %d of %d", ErrCorrupt, typeIdx, strIdx, stringsSize)
		}
		desc, err := dexString(b, le.Uint32(b[stringsOff+strIdx*4:]))
		if err != nil {
			return nil, err
		}
		names = append(names, descriptorName(desc))
	}
	return names, nil
}

func within(b []byte, off, count, size uint32) bool {
	end := uint64(off) + uint64(count)*uint64(size)
	return count == 0 || (off >= dexHeaderSize && end <= uint64(len(b)))
}

// dexString reads a string_data_item: uleb128 length in UTF-16 units, then MUTF-8 bytes ended by NUL.
func dexString(b []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(b)) {
		return "", fmt.Errorf("%w: string offset %d", ErrCorrupt, off)
	}
	p := int(off)
	for shift := 0; ; shift += 7 {
		if p >= len(b) || shift > 28 {
			return "", fmt.Errorf("%w: string length at %d", ErrCorrupt, off)
		}
		c := b[p]
		p++
		if c&0x80 == 0 {
			break
		}
	}
	end := bytes.IndexByte(b[p:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %d", ErrCorrupt, off)
	}
	return string(b[p : p+end]), nil
}

func descriptorName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		desc = desc[1 : len(desc)-1]
	}
	return strings.ReplaceAll(desc, "/", ".")
}
