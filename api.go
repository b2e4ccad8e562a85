// Package hashresolve locates function addresses among the exports of
// already loaded modules, matching names by case-folded FNV-1a hash so the
// names themselves never have to appear in the calling binary.
package hashresolve

import (
	"github.com/carved4/go-hashresolve/pkg/hash"
	"github.com/carved4/go-hashresolve/pkg/loader"
	"github.com/carved4/go-hashresolve/pkg/resolve"
	"github.com/carved4/go-hashresolve/pkg/utils"
)

// Function is a resolved export; see resolve.Function.
type Function = resolve.Function

// New builds a Resolver with non-default wiring (another loader view, a
// logger, a different forwarder hop budget).
var New = resolve.New

// GetHash is the digest every operation in this module matches against,
// memoized per name.
var GetHash = hash.Get

// Sum is the same digest over raw bytes, uncached.
var Sum = hash.Sum

// ExecutablePath reports the running image's path as the loader records it.
var ExecutablePath = loader.ExecutablePath

var (
	ErrNotFound     = resolve.ErrNotFound
	ErrForwardDepth = resolve.ErrForwardDepth
)

var std = resolve.New()

// ResolveByHash scans every loaded module for a named export whose digest
// equals h and returns its address in this process.
func ResolveByHash(h uint32) (Function, error) {
	return std.ResolveByHash(h)
}

// ResolveByName hashes name and resolves it. Shipping only the precomputed
// hash and calling ResolveByHash keeps the name out of the binary; this
// helper is for callers that do not care.
func ResolveByName(name string) (Function, error) {
	return std.ResolveByHash(hash.Get(name))
}

// ResolveInModule looks for functionHash only inside the module whose name
// digest equals moduleHash.
func ResolveInModule(moduleHash, functionHash uint32) (Function, error) {
	return std.ResolveInModule(moduleHash, functionHash)
}

// ResolveOrdinal resolves by biased ordinal inside one module, the only way
// to reach exports that carry no name.
func ResolveOrdinal(moduleHash uint32, ordinal uint32) (Function, error) {
	return std.ResolveOrdinal(moduleHash, ordinal)
}

// ModuleByHash finds the loaded module whose base name digest equals h.
func ModuleByHash(h uint32) (loader.Module, error) {
	return std.ModuleByHash(h)
}

// ListExports parses every loaded module's export table.
func ListExports() ([]resolve.ModuleExports, error) {
	return std.ListExports()
}

// Conversion helpers, re-exported for callers working with the raw pointers
// that resolved functions hand back.
var (
	UTF16FromString    = utils.UTF16FromString
	UTF16PtrFromString = utils.UTF16PtrFromString
	UTF16ToString      = utils.UTF16ToString
	ReadUTF16String    = utils.ReadUTF16String
	ReadANSIString     = utils.ReadANSIString
	ReadBytes          = utils.ReadBytes
)
