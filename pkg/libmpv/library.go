package libmpv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// LibraryPathEnv overrides the library search.
const LibraryPathEnv = "MPV_LIBRARY_PATH"

// Library is a loaded libmpv with its bound entry points. It is immutable
// after Load returns and safe for concurrent use.
type Library struct {
	path   string
	handle uintptr

	clientAPIVersion   func() uint64
	errorString        func(code int32) uintptr
	free               func(data uintptr)
	freeNodeContents   func(n *node)
	create             func() uintptr
	createClient       func(ctx uintptr, name uintptr) uintptr
	initialize         func(ctx uintptr) int32
	destroy            func(ctx uintptr)
	terminateDestroy   func(ctx uintptr)
	setOptionString    func(ctx uintptr, name uintptr, data uintptr) int32
	command            func(ctx uintptr, args uintptr) int32
	commandNode        func(ctx uintptr, args *node, result *node) int32
	setProperty        func(ctx uintptr, name uintptr, format Format, data uintptr) int32
	getProperty        func(ctx uintptr, name uintptr, format Format, data uintptr) int32
	observeProperty    func(ctx uintptr, id uint64, name uintptr, format Format) int32
	requestLogMessages func(ctx uintptr, level uintptr) int32
	waitEvent          func(ctx uintptr, timeout float64) uintptr
}

var (
	sharedOnce sync.Once
	sharedLib  *Library
	sharedErr  error
)

// Open returns the process-wide library, loading it on first use. The path
// given to the first call wins. A failed load is cached as well: later calls
// return the same error without retrying.
func Open(path string) (*Library, error) {
	sharedOnce.Do(func() {
		sharedLib, sharedErr = Load(path)
	})
	return sharedLib, sharedErr
}

// Default is Open with the default search.
func Default() (*Library, error) {
	return Open("")
}

// Load locates and binds libmpv without touching the process-wide cache.
func Load(path string) (*Library, error) {
	candidates := searchPaths(path)

	var errs []error
	for _, candidate := range candidates {
		handle, err := openLibrary(candidate)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		lib := &Library{path: candidate, handle: handle}
		if err := lib.bind(); err != nil {
			return nil, WrapError(KindLibrary, "failed to bind libmpv from "+candidate, err)
		}
		return lib, nil
	}

	return nil, WrapError(KindLibrary,
		fmt.Sprintf("libmpv not found (tried %s)", strings.Join(candidates, ", ")),
		errors.Join(errs...))
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// ClientAPIVersion returns MPV_CLIENT_API_VERSION of the loaded library.
func (l *Library) ClientAPIVersion() uint64 {
	return l.clientAPIVersion()
}

// ClientAPIVersionString formats the client API version as major.minor.
func (l *Library) ClientAPIVersionString() string {
	v := l.ClientAPIVersion()
	return fmt.Sprintf("%d.%d", v>>16, v&0xffff)
}

// ErrorString returns mpv's description of a status code.
func (l *Library) ErrorString(code int) string {
	return goString(l.errorString(int32(code)))
}

func (l *Library) bind() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	register := func(fptr interface{}, name string) {
		purego.RegisterLibFunc(fptr, l.handle, name)
	}

	register(&l.clientAPIVersion, "mpv_client_api_version")
	register(&l.errorString, "mpv_error_string")
	register(&l.free, "mpv_free")
	register(&l.freeNodeContents, "mpv_free_node_contents")
	register(&l.create, "mpv_create")
	register(&l.createClient, "mpv_create_client")
	register(&l.initialize, "mpv_initialize")
	register(&l.destroy, "mpv_destroy")
	register(&l.terminateDestroy, "mpv_terminate_destroy")
	register(&l.setOptionString, "mpv_set_option_string")
	register(&l.command, "mpv_command")
	register(&l.commandNode, "mpv_command_node")
	register(&l.setProperty, "mpv_set_property")
	register(&l.getProperty, "mpv_get_property")
	register(&l.observeProperty, "mpv_observe_property")
	register(&l.requestLogMessages, "mpv_request_log_messages")
	register(&l.waitEvent, "mpv_wait_event")
	return nil
}

func libraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libmpv.2.dylib", "libmpv.dylib"}
	case "windows":
		return []string{"libmpv-2.dll", "mpv-2.dll", "mpv-1.dll"}
	default:
		return []string{"libmpv.so.2", "libmpv.so.1", "libmpv.so"}
	}
}

// searchPaths lists load candidates in order: the explicit path, the
// environment override, the executable's directory, ../lib next to the
// executable, then bare names for the system loader.
func searchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	var paths []string
	if env := os.Getenv(LibraryPathEnv); env != "" {
		paths = append(paths, env)
	}

	names := libraryNames()
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, dir := range []string{execDir, filepath.Join(execDir, "..", "lib")} {
			for _, name := range names {
				candidate := filepath.Join(dir, name)
				if _, err := os.Stat(candidate); err == nil {
					paths = append(paths, candidate)
				}
			}
		}
	}

	return append(paths, names...)
}
