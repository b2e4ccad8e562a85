// Package loader reads the process loader's module bookkeeping: which
// modules are currently mapped, and the raw bytes of their images.
package loader

import "errors"

// Module is one entry of the loader's module list, captured at enumeration
// time. Nothing here stays valid across an unload of the module.
type Module struct {
	Base uintptr
	Size uint32
	Name string // base name, e.g. "KERNEL32.DLL"
	Path string // full path when the loader records one
}

// View is read-only access to a loader's idea of the process. The native
// view walks the current process; tests substitute their own.
//
// Modules returns a fresh snapshot on every call, in loader order. The
// loader lock is never taken: enumerating while another thread loads or
// unloads modules is the caller's race to avoid.
type View interface {
	Modules() ([]Module, error)
	Image(Module) ([]byte, error)
}

var (
	// ErrLoaderData marks loader bookkeeping that could not be read or
	// failed a sanity check. The enumeration that hit it is unusable.
	ErrLoaderData = errors.New("unreadable loader data")

	// ErrUnsupported is returned by the native view on platforms without
	// a module loader this package understands.
	ErrUnsupported = errors.New("module enumeration not supported on this platform")
)
