package docvault

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"golang.org/x/net/http/httpproxy"
)

// hashEntry is a cached digest and the modification time it was computed at
type hashEntry struct {
	modTime int64
	hash    []byte
}

// source is a resolved key-file locator
type source struct {
	id     string   // canonical identity used as the cache key
	path   string   // local path, when remote is nil
	remote *url.URL // http(s) location
}

// FileHasher computes SHA-512 digests of local files and http(s) resources,
// caching each digest until the source's modification time changes.
type FileHasher struct {
	fs      absfs.FileSystem
	client  *http.Client
	bufSize int

	mu    sync.Mutex
	cache map[string]hashEntry
}

// NewFileHasher creates a hasher reading local paths through fs and remote
// locators through client. A nil client gets NewProxyClient(DefaultHTTPTimeout).
func NewFileHasher(fs absfs.FileSystem, client *http.Client, bufSize int) *FileHasher {
	if client == nil {
		client = NewProxyClient(DefaultHTTPTimeout)
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &FileHasher{
		fs:      fs,
		client:  client,
		bufSize: bufSize,
		cache:   make(map[string]hashEntry),
	}
}

// NewProxyClient returns an HTTP client that honours HTTP_PROXY, HTTPS_PROXY
// and NO_PROXY from the environment.
func NewProxyClient(timeout time.Duration) *http.Client {
	proxy := httpproxy.FromEnvironment().ProxyFunc()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Hash returns the SHA-512 digest of the resource named by locator, which may
// be a local path, a file:// URL or an http(s):// URL. An empty locator
// yields a nil digest and no error.
func (h *FileHasher) Hash(locator string) ([]byte, error) {
	if locator == "" {
		return nil, nil
	}

	src, err := h.resolve(locator)
	if err != nil {
		return nil, err
	}
	if src.remote != nil {
		return h.hashRemote(src)
	}
	return h.hashLocal(src)
}

// Clear drops every cached digest
func (h *FileHasher) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = make(map[string]hashEntry)
}

// Len returns the number of cached digests
func (h *FileHasher) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cache)
}

func (h *FileHasher) lookup(id string, modTime int64) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.cache[id]
	if !ok || e.modTime != modTime {
		return nil, false
	}
	return bytes.Clone(e.hash), true
}

func (h *FileHasher) store(id string, modTime int64, sum []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[id] = hashEntry{modTime: modTime, hash: bytes.Clone(sum)}
}

// resolve classifies locator and computes its canonical identity
func (h *FileHasher) resolve(locator string) (source, error) {
	u, err := url.Parse(locator)
	// single-letter schemes are Windows drive letters
	if err != nil || len(u.Scheme) <= 1 {
		p, err := h.canonicalPath(locator)
		return source{id: p, path: p}, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		u.Host = strings.ToLower(u.Host)
		u.Fragment = ""
		return source{id: u.String(), remote: u}, nil
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		p, err := h.canonicalPath(filepath.FromSlash(p))
		return source{id: p, path: p}, err
	default:
		return source{}, &ValidationError{
			Field:   "key_file",
			Value:   locator,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Err:     ErrUnsupportedScheme,
		}
	}
}

func (h *FileHasher) canonicalPath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		wd, err := h.fs.Getwd()
		if err != nil {
			return "", NewIOError("getwd", p, err)
		}
		p = filepath.Join(wd, p)
	}
	return filepath.Clean(p), nil
}

func (h *FileHasher) hashLocal(src source) ([]byte, error) {
	info, err := h.fs.Stat(src.path)
	if err != nil {
		return nil, NewIOError("stat", src.path, err)
	}
	modTime := info.ModTime().UnixNano()
	if sum, ok := h.lookup(src.id, modTime); ok {
		return sum, nil
	}

	f, err := h.fs.Open(src.path)
	if err != nil {
		return nil, NewIOError("open", src.path, err)
	}
	defer f.Close()

	sum, err := HashReader(f, h.bufSize)
	if err != nil {
		return nil, NewIOError("read", src.path, err)
	}
	h.store(src.id, modTime, sum)
	return sum, nil
}

func (h *FileHasher) hashRemote(src source) ([]byte, error) {
	resp, err := h.client.Get(src.remote.String())
	if err != nil {
		return nil, NewIOError("fetch", src.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewIOError("fetch", src.id, fmt.Errorf("unexpected status %s", resp.Status))
	}

	// zero means the server did not say; such resources are always rehashed
	modTime := lastModified(resp)
	if modTime != 0 {
		if sum, ok := h.lookup(src.id, modTime); ok {
			return sum, nil
		}
	}

	sum, err := HashReader(resp.Body, h.bufSize)
	if err != nil {
		return nil, NewIOError("read", src.id, err)
	}
	if modTime != 0 {
		h.store(src.id, modTime, sum)
	}
	return sum, nil
}

func lastModified(resp *http.Response) int64 {
	v := resp.Header.Get("Last-Modified")
	if v == "" {
		return 0
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// HashReader computes the SHA-512 digest of r, reading bufSize bytes at a time
func HashReader(r io.Reader, bufSize int) ([]byte, error) {
	if r == nil {
		return nil, errors.New("reader cannot be nil")
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	h := sha512.New()
	if _, err := io.CopyBuffer(h, onlyReader{r}, make([]byte, bufSize)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
