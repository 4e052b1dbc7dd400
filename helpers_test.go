package docvault

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestFS(t testing.TB) absfs.FileSystem {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("Failed to create memfs: %v", err)
	}
	return fs
}

func writeTestFile(t testing.TB, fs absfs.FileSystem, name string, data []byte, modTime time.Time) {
	t.Helper()
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		t.Fatalf("failed to write %s: %v", name, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close %s: %v", name, err)
	}
	if !modTime.IsZero() {
		if err := fs.Chtimes(name, modTime, modTime); err != nil {
			t.Fatalf("failed to set times on %s: %v", name, err)
		}
	}
}

func readTestFile(t testing.TB, fs absfs.FileSystem, name string) []byte {
	t.Helper()
	f, err := fs.Open(name)
	if err != nil {
		t.Fatalf("failed to open %s: %v", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return data
}

func fileExists(fs absfs.FileSystem, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}

// testConfig keeps key derivation cheap; interop tests use DefaultConfig
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.KDF.Iterations = 1000
	cfg.BufferSize = 64
	return cfg
}

func newTestVault(t testing.TB, fs absfs.FileSystem, passphrase string, opts ...Option) (*Vault, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	v, err := New(fs, testConfig(), append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	if passphrase != "" {
		v.SetPassphrase(NewPassphraseString(passphrase))
	}
	return v, hook
}

// spyFS counts filesystem calls and captures file contents at removal
type spyFS struct {
	absfs.FileSystem

	mu      sync.Mutex
	calls   int
	removed map[string][]byte
}

func newSpyFS(base absfs.FileSystem) *spyFS {
	return &spyFS{FileSystem: base, removed: make(map[string][]byte)}
}

func (s *spyFS) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyFS) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	s.count()
	return s.FileSystem.OpenFile(name, flag, perm)
}

func (s *spyFS) Open(name string) (absfs.File, error) {
	s.count()
	return s.FileSystem.Open(name)
}

func (s *spyFS) Create(name string) (absfs.File, error) {
	s.count()
	return s.FileSystem.Create(name)
}

func (s *spyFS) Stat(name string) (os.FileInfo, error) {
	s.count()
	return s.FileSystem.Stat(name)
}

func (s *spyFS) Rename(oldpath, newpath string) error {
	s.count()
	return s.FileSystem.Rename(oldpath, newpath)
}

func (s *spyFS) Remove(name string) error {
	s.count()
	if f, err := s.FileSystem.Open(name); err == nil {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, f)
		f.Close()
		s.mu.Lock()
		s.removed[name] = buf.Bytes()
		s.mu.Unlock()
	}
	return s.FileSystem.Remove(name)
}
