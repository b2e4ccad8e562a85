package utils

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF16RoundTrip(t *testing.T) {
	for _, s := range []string{"", "kernel32.dll", "héllo wörld", "名前.dll", "pair \U0001D54F"} {
		w, err := UTF16FromString(s)
		require.NoError(t, err)
		require.NotEmpty(t, w)
		assert.EqualValues(t, 0, w[len(w)-1])

		assert.Equal(t, s, UTF16ToString(&w[0]))
		runtime.KeepAlive(w)
	}
}

func TestUTF16FromStringRejectsNUL(t *testing.T) {
	_, err := UTF16FromString("bad\x00name")
	assert.ErrorIs(t, err, ErrInteriorNUL)

	_, err = UTF16PtrFromString("bad\x00name")
	assert.ErrorIs(t, err, ErrInteriorNUL)
}

func TestUTF16PtrFromString(t *testing.T) {
	p, err := UTF16PtrFromString("ntdll.dll")
	require.NoError(t, err)
	assert.Equal(t, "ntdll.dll", UTF16ToString(p))
	runtime.KeepAlive(p)
}

func TestUTF16ToStringNil(t *testing.T) {
	assert.Equal(t, "", UTF16ToString(nil))
	assert.Equal(t, "", ReadUTF16String(0))
}

func TestReadANSIString(t *testing.T) {
	buf := []byte("hello\x00trailing")
	got := ReadANSIString(uintptr(unsafe.Pointer(&buf[0])))
	runtime.KeepAlive(buf)
	assert.Equal(t, "hello", got)

	assert.Equal(t, "", ReadANSIString(0))
}

func TestReadBytes(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	got := ReadBytes(uintptr(unsafe.Pointer(&src[0])), 3)
	runtime.KeepAlive(src)
	require.Equal(t, []byte{1, 2, 3}, got)

	// The copy must not alias the source.
	got[0] = 9
	assert.EqualValues(t, 1, src[0])

	assert.Nil(t, ReadBytes(0, 4))
	assert.Nil(t, ReadBytes(uintptr(unsafe.Pointer(&src[0])), 0))
}

func TestJSONKind(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, "object"},
		{`[1,2]`, "array"},
		{`"hi"`, "string"},
		{`42.5`, "number"},
		{`true`, "boolean"},
		{`null`, "null"},
	}
	for _, tc := range cases {
		got, err := JSONKind([]byte(tc.in))
		require.NoError(t, err, "JSONKind(%s)", tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := JSONKind([]byte("{nope"))
	assert.Error(t, err)
}
