package libmpv

import (
	"path/filepath"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	t.Run("explicit path only", func(t *testing.T) {
		got := searchPaths("/opt/mpv/libmpv.so.2")
		if len(got) != 1 || got[0] != "/opt/mpv/libmpv.so.2" {
			t.Errorf("searchPaths() = %v", got)
		}
	})

	t.Run("environment first", func(t *testing.T) {
		t.Setenv(LibraryPathEnv, "/custom/libmpv.so")
		got := searchPaths("")
		if len(got) == 0 || got[0] != "/custom/libmpv.so" {
			t.Fatalf("searchPaths() = %v, want env path first", got)
		}
		names := libraryNames()
		tail := got[len(got)-len(names):]
		for i, name := range names {
			if tail[i] != name {
				t.Errorf("fallback[%d] = %q, want %q", i, tail[i], name)
			}
		}
	})
}

func TestLoadMissingLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libmpv-missing.so")

	lib, err := Load(path)
	if err == nil {
		t.Fatalf("Load() = %v, want error", lib)
	}
	if KindOf(err) != KindLibrary {
		t.Errorf("KindOf() = %q, want library", KindOf(err))
	}
}
