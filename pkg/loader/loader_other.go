//go:build !windows

package loader

import (
	"fmt"
	"os"
)

type unsupportedView struct{}

// Native returns the view backed by the current process's loader. Only the
// Windows loader is understood; everything else fails with ErrUnsupported.
func Native() View { return unsupportedView{} }

func (unsupportedView) Modules() ([]Module, error) {
	return nil, fmt.Errorf("loader: %w", ErrUnsupported)
}

func (unsupportedView) Image(Module) ([]byte, error) {
	return nil, fmt.Errorf("loader: %w", ErrUnsupported)
}

// ExecutablePath returns the running image's path.
func ExecutablePath() (string, error) {
	return os.Executable()
}
