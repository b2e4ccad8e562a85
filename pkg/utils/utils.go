// Package utils carries the conversions Windows interop keeps needing:
// UTF-16 strings in both directions and bounded reads of foreign memory.
package utils

import (
	"errors"
	"fmt"
	"unicode/utf16"
	"unsafe"
)

// Caps walks over foreign strings that turn out to be unterminated.
const maxStringLen = 32768

// ErrInteriorNUL rejects Go strings that cannot survive a round trip
// through a NUL-terminated encoding.
var ErrInteriorNUL = errors.New("string contains interior NUL")

// UTF16FromString encodes s as UTF-16 with a terminating NUL appended.
func UTF16FromString(s string) ([]uint16, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return nil, fmt.Errorf("utils: %w", ErrInteriorNUL)
		}
	}
	return append(utf16.Encode([]rune(s)), 0), nil
}

// UTF16PtrFromString encodes s like UTF16FromString and hands back a
// pointer to the first character, the shape wide-string APIs take.
func UTF16PtrFromString(s string) (*uint16, error) {
	w, err := UTF16FromString(s)
	if err != nil {
		return nil, err
	}
	return &w[0], nil
}

// UTF16ToString decodes the NUL-terminated UTF-16 string at ptr,
// surrogate pairs included.
func UTF16ToString(ptr *uint16) string {
	if ptr == nil {
		return ""
	}
	var chars []uint16
	p := uintptr(unsafe.Pointer(ptr))
	for len(chars) < maxStringLen {
		c := *(*uint16)(unsafe.Pointer(p))
		if c == 0 {
			break
		}
		chars = append(chars, c)
		p += 2
	}
	return string(utf16.Decode(chars))
}

// ReadUTF16String is UTF16ToString for callers holding a raw address.
func ReadUTF16String(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	return UTF16ToString((*uint16)(unsafe.Pointer(ptr)))
}

// ReadANSIString reads the NUL-terminated byte string at ptr.
func ReadANSIString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var b []byte
	for off := uintptr(0); len(b) < maxStringLen; off++ {
		c := *(*byte)(unsafe.Pointer(ptr + off))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}

// ReadBytes copies length bytes of foreign memory into a fresh slice.
func ReadBytes(ptr uintptr, length int) []byte {
	if ptr == 0 || length <= 0 {
		return nil
	}
	out := make([]byte, length)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length))
	return out
}
