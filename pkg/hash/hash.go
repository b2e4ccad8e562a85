package hash

import "sync"

// FNV-1a parameters. Both are part of the wire contract with callers that
// embed precomputed hashes, so they are constants, never configurable.
const (
	offsetBasis uint32 = 0x811C9DC5
	prime       uint32 = 0x01000193
)

// Sum returns the case-folded FNV-1a digest of buffer. ASCII uppercase folds
// to lowercase and NUL bytes are skipped, so a UTF-16LE module name hashes
// the same as its ANSI spelling in any casing.
func Sum(buffer []byte) uint32 {
	h := offsetBasis
	for _, b := range buffer {
		if b == 0 {
			continue
		}
		if b >= 'A' && b <= 'Z' {
			b += 0x20
		}
		h = (h ^ uint32(b)) * prime
	}
	return h
}

var (
	cache      = make(map[string]uint32)
	cacheMutex sync.RWMutex
)

// Get returns Sum of s, memoizing the result. A scan hashes the same export
// names over and over; hits skip the fold loop entirely.
func Get(s string) uint32 {
	cacheMutex.RLock()
	if h, ok := cache[s]; ok {
		cacheMutex.RUnlock()
		return h
	}
	cacheMutex.RUnlock()

	h := Sum([]byte(s))

	cacheMutex.Lock()
	cache[s] = h
	cacheMutex.Unlock()
	return h
}

// ClearCache drops every memoized hash.
func ClearCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	cache = make(map[string]uint32)
}
