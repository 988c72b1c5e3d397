//go:build !(darwin || freebsd || linux || netbsd || windows)

package libmpv

import (
	"fmt"
	"runtime"
)

func openLibrary(path string) (uintptr, error) {
	return 0, fmt.Errorf("loading %s is not supported on %s", path, runtime.GOOS)
}
