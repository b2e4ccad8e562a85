package export

import (
	"encoding/binary"
	"fmt"
)

// Entry is one occupied slot of a module's export address table.
//
// Name is empty for ordinal-only exports. A non-empty Forwarder means the
// slot redirects to another module's export ("TARGETDLL.Func" or
// "TARGETDLL.#12"); RVA then points at that string, not at code.
type Entry struct {
	Name      string
	Ordinal   uint32
	RVA       uint32
	Forwarder string
}

// Forwarded reports whether the entry redirects to another module.
func (e Entry) Forwarded() bool { return e.Forwarder != "" }

// FormatError describes a structurally invalid image. It condemns only the
// module it came from; a scan across modules skips that module and goes on.
type FormatError struct {
	Off uint32
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("export: %s at 0x%x", e.Msg, e.Off)
}

const (
	// Table counts beyond this are treated as corruption rather than
	// honored with a giant allocation. Real modules top out well below
	// (ntdll carries ~2500 exports).
	maxEntries = 1 << 16

	// Longest export or forwarder name honored before declaring the
	// string unterminated.
	maxNameLen = 512
)

// Parse enumerates the export table of a loader-mapped image, where a byte
// offset into image equals its RVA. An image without an export directory
// yields (nil, nil): exporting nothing is normal, not malformed.
func Parse(image []byte) ([]Entry, error) {
	dirRVA, dirSize, err := directory(image)
	if err != nil {
		return nil, err
	}
	if dirRVA == 0 || dirSize == 0 {
		return nil, nil
	}
	// The directory extent bounds the forwarder range check below; a size
	// that overruns the image would wrap dirEnd and misclassify forwarders
	// as code.
	if int64(dirRVA)+int64(dirSize) > int64(len(image)) {
		return nil, &FormatError{dirRVA, fmt.Sprintf("directory size 0x%x overruns image", dirSize)}
	}

	// IMAGE_EXPORT_DIRECTORY field offsets
	// 16: Base (DWORD)
	// 20: NumberOfFunctions (DWORD)
	// 24: NumberOfNames (DWORD)
	// 28: AddressOfFunctions (DWORD)
	// 32: AddressOfNames (DWORD)
	// 36: AddressOfNameOrdinals (DWORD)
	dir, err := view(image, dirRVA, 40)
	if err != nil {
		return nil, err
	}
	ordinalBase := binary.LittleEndian.Uint32(dir[16:])
	numFuncs := binary.LittleEndian.Uint32(dir[20:])
	numNames := binary.LittleEndian.Uint32(dir[24:])
	funcsRVA := binary.LittleEndian.Uint32(dir[28:])
	namesRVA := binary.LittleEndian.Uint32(dir[32:])
	ordsRVA := binary.LittleEndian.Uint32(dir[36:])

	if numFuncs > maxEntries || numNames > maxEntries {
		return nil, &FormatError{dirRVA, fmt.Sprintf("implausible export counts %d/%d", numFuncs, numNames)}
	}

	funcs, err := view(image, funcsRVA, int(numFuncs)*4)
	if err != nil {
		return nil, err
	}
	names, err := view(image, namesRVA, int(numNames)*4)
	if err != nil {
		return nil, err
	}
	ords, err := view(image, ordsRVA, int(numNames)*2)
	if err != nil {
		return nil, err
	}

	// The name and ordinal tables run in parallel: names[i] belongs to
	// function slot ords[i].
	nameByIndex := make(map[uint16]string, numNames)
	for i := 0; i < int(numNames); i++ {
		nameRVA := binary.LittleEndian.Uint32(names[i*4:])
		name, err := cstring(image, nameRVA)
		if err != nil {
			return nil, err
		}
		idx := binary.LittleEndian.Uint16(ords[i*2:])
		if uint32(idx) >= numFuncs {
			return nil, &FormatError{ordsRVA + uint32(i*2), fmt.Sprintf("name %q maps to ordinal index %d of %d", name, idx, numFuncs)}
		}
		nameByIndex[idx] = name
	}

	dirEnd := dirRVA + dirSize
	entries := make([]Entry, 0, numFuncs)
	for i := 0; i < int(numFuncs); i++ {
		rva := binary.LittleEndian.Uint32(funcs[i*4:])
		if rva == 0 {
			// Unused slot, not an export.
			continue
		}
		e := Entry{
			Name:    nameByIndex[uint16(i)],
			Ordinal: ordinalBase + uint32(i),
			RVA:     rva,
		}
		// An RVA inside the export directory itself is a forwarder
		// string, never code.
		if rva >= dirRVA && rva < dirEnd {
			fwd, err := cstring(image, rva)
			if err != nil {
				return nil, err
			}
			e.Forwarder = fwd
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// directory locates DataDirectory[0] (the export table) of the optional
// header, validating the DOS and NT headers on the way.
func directory(image []byte) (rva, size uint32, err error) {
	if len(image) < 64 || image[0] != 'M' || image[1] != 'Z' {
		return 0, 0, &FormatError{0, "missing MZ signature"}
	}
	peOff := binary.LittleEndian.Uint32(image[0x3C:])
	hdr, err := view(image, peOff, 24)
	if err != nil {
		return 0, 0, err
	}
	if hdr[0] != 'P' || hdr[1] != 'E' || hdr[2] != 0 || hdr[3] != 0 {
		return 0, 0, &FormatError{peOff, "missing PE signature"}
	}

	// Optional header starts after the 4-byte signature and 20-byte COFF
	// header. DataDirectory sits at +96 for PE32, +112 for PE32+, with
	// NumberOfRvaAndSizes in the DWORD just before it.
	opt := peOff + 24
	magicBuf, err := view(image, opt, 2)
	if err != nil {
		return 0, 0, err
	}
	var ddOff uint32
	switch magic := binary.LittleEndian.Uint16(magicBuf); magic {
	case 0x10b: // PE32
		ddOff = 96
	case 0x20b: // PE32+
		ddOff = 112
	default:
		return 0, 0, &FormatError{opt, fmt.Sprintf("unknown optional header magic 0x%x", magic)}
	}
	cnt, err := view(image, opt+ddOff-4, 4)
	if err != nil {
		return 0, 0, err
	}
	if binary.LittleEndian.Uint32(cnt) == 0 {
		return 0, 0, nil
	}
	dd, err := view(image, opt+ddOff, 8)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(dd), binary.LittleEndian.Uint32(dd[4:]), nil
}

// view returns image[off:off+n] after checking both ends stay inside.
func view(image []byte, off uint32, n int) ([]byte, error) {
	end := int64(off) + int64(n)
	if int64(off) > int64(len(image)) || end > int64(len(image)) {
		return nil, &FormatError{off, "reference past end of image"}
	}
	return image[off:end:end], nil
}

// cstring reads the NUL-terminated ASCII string at rva. A run past
// maxNameLen or off the end of the image is malformed, not truncated.
func cstring(image []byte, rva uint32) (string, error) {
	if int64(rva) >= int64(len(image)) {
		return "", &FormatError{rva, "string reference past end of image"}
	}
	limit := len(image)
	if stop := int(rva) + maxNameLen; stop < limit {
		limit = stop
	}
	for end := int(rva); end < limit; end++ {
		if image[end] == 0 {
			return string(image[rva:end]), nil
		}
	}
	return "", &FormatError{rva, "unterminated string"}
}
