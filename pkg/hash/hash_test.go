package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Digests below were computed independently; they pin the algorithm so a
// change here shows up as a broken build, not as silent misresolution in
// binaries carrying embedded hashes.
func TestSumKnownAnswers(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"", 0x811C9DC5},
		{"kernel32.dll", 0xA3E6F6C3},
		{"ntdll.dll", 0xA62A3B3B},
		{"GetProcAddress", 0xB8E4E945},
		{"TerminateProcess", 0xF38219D9},
		{"LoadLibraryW", 0x3BBC54D9},
		{"RtlAllocateHeap", 0x5B556698},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Sum([]byte(tc.in)), "Sum(%q)", tc.in)
	}
}

func TestSumFoldsCase(t *testing.T) {
	assert.Equal(t, Sum([]byte("kernel32.dll")), Sum([]byte("KERNEL32.DLL")))
	assert.Equal(t, Sum([]byte("terminateprocess")), Sum([]byte("TerminateProcess")))
	// '[' is one past 'Z'; the fold must not touch it.
	assert.NotEqual(t, Sum([]byte("[")), Sum([]byte("{")))
}

func TestSumSkipsNUL(t *testing.T) {
	// UTF-16LE bytes of an ASCII name interleave NULs; skipping them makes
	// the raw buffer hash equal to the narrow spelling.
	wide := make([]byte, 0, 24)
	for _, c := range []byte("KERNEL32.DLL") {
		wide = append(wide, c, 0)
	}
	assert.Equal(t, uint32(0xA3E6F6C3), Sum(wide))
}

func TestGetMemoizes(t *testing.T) {
	ClearCache()
	first := Get("GetProcAddress")
	require.Equal(t, uint32(0xB8E4E945), first)
	assert.Equal(t, first, Get("GetProcAddress"))

	ClearCache()
	assert.Equal(t, first, Get("GetProcAddress"))
	assert.Equal(t, Sum([]byte("GetProcAddress")), Get("GetProcAddress"))
}

func TestGetConcurrent(t *testing.T) {
	ClearCache()
	done := make(chan uint32, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- Get("ntdll.dll") }()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, uint32(0xA62A3B3B), <-done)
	}
}
