//go:build windows

package loader

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// A list longer than this means the links are corrupt or we are chasing a
// cycle that never returns to the head.
const maxModules = 4096

// ldrEntry mirrors LDR_DATA_TABLE_ENTRY far enough to reach the fields the
// walk needs. x/sys keeps SizeOfImage and BaseDllName behind reserved
// padding, so the shape is spelled out here.
type ldrEntry struct {
	InLoadOrderLinks           windows.LIST_ENTRY
	InMemoryOrderLinks         windows.LIST_ENTRY
	InInitializationOrderLinks windows.LIST_ENTRY
	DllBase                    uintptr
	EntryPoint                 uintptr
	SizeOfImage                uintptr
	FullDllName                windows.NTUnicodeString
	BaseDllName                windows.NTUnicodeString
}

type pebView struct{}

// Native returns the view backed by the current process's loader.
func Native() View { return pebView{} }

func (pebView) Modules() ([]Module, error) {
	peb := windows.RtlGetCurrentPeb()
	if peb == nil || peb.Ldr == nil {
		return nil, fmt.Errorf("loader: %w: Ldr not initialized", ErrLoaderData)
	}

	head := &peb.Ldr.InMemoryOrderModuleList
	var mods []Module
	for cur := head.Flink; cur != head; cur = cur.Flink {
		if cur == nil {
			return nil, fmt.Errorf("loader: %w: module list link is nil", ErrLoaderData)
		}
		if len(mods) == maxModules {
			return nil, fmt.Errorf("loader: %w: module list exceeds %d entries", ErrLoaderData, maxModules)
		}
		// The links are embedded mid-struct; step back to the entry.
		entry := (*ldrEntry)(unsafe.Pointer(uintptr(unsafe.Pointer(cur)) - unsafe.Offsetof(ldrEntry{}.InMemoryOrderLinks)))
		if entry.DllBase == 0 {
			continue
		}
		mods = append(mods, Module{
			Base: entry.DllBase,
			Size: uint32(entry.SizeOfImage),
			Name: ntString(entry.BaseDllName),
			Path: ntString(entry.FullDllName),
		})
	}
	return mods, nil
}

func (pebView) Image(m Module) ([]byte, error) {
	if m.Base == 0 || m.Size == 0 {
		return nil, fmt.Errorf("loader: module %q has no mapped image", m.Name)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(m.Base)), m.Size), nil
}

// ExecutablePath returns the running image's path as the loader recorded it.
func ExecutablePath() (string, error) {
	peb := windows.RtlGetCurrentPeb()
	if peb == nil || peb.ProcessParameters == nil {
		return "", fmt.Errorf("loader: %w: process parameters unavailable", ErrLoaderData)
	}
	return ntString(peb.ProcessParameters.ImagePathName), nil
}

func ntString(s windows.NTUnicodeString) string {
	if s.Buffer == nil || s.Length == 0 {
		return ""
	}
	return windows.UTF16ToString(unsafe.Slice(s.Buffer, s.Length/2))
}
