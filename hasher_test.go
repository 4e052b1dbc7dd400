package docvault

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func sha512Of(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:]
}

func TestFileHasher_Local(t *testing.T) {
	fs := newTestFS(t)
	t0 := time.Unix(1_600_000_000, 0)
	writeTestFile(t, fs, "/key.bin", []byte("key file material"), t0)

	h := NewFileHasher(fs, nil, 16)

	sum, err := h.Hash("/key.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sum, sha512Of([]byte("key file material"))) {
		t.Errorf("Hash = %x", sum)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}

	// same modification time: the cached digest is returned
	writeTestFile(t, fs, "/key.bin", []byte("changed content"), t0)
	cached, err := h.Hash("/key.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(cached, sum) {
		t.Error("digest recomputed although the modification time did not change")
	}

	// new modification time: recomputed
	if err := fs.Chtimes("/key.bin", t0.Add(time.Second), t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	fresh, err := h.Hash("/key.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fresh, sha512Of([]byte("changed content"))) {
		t.Error("digest not recomputed after the modification time changed")
	}

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len() after Clear = %d", h.Len())
	}
}

func TestFileHasher_ReturnsCopy(t *testing.T) {
	fs := newTestFS(t)
	writeTestFile(t, fs, "/key.bin", []byte("key file material"), time.Unix(1_600_000_000, 0))
	h := NewFileHasher(fs, nil, 0)
	want := sha512Of([]byte("key file material"))

	// once on the computed digest, once on the cached one
	for i := 0; i < 2; i++ {
		sum, err := h.Hash("/key.bin")
		if err != nil {
			t.Fatal(err)
		}
		sum[0] ^= 0xFF
	}

	got, err := h.Hash("/key.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("cached digest was modified through a returned slice: %x", got)
	}
	if h.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", h.Len())
	}
}

func TestFileHasher_Locators(t *testing.T) {
	fs := newTestFS(t)
	writeTestFile(t, fs, "/key.bin", []byte("abc"), time.Unix(100, 0))
	want := sha512Of([]byte("abc"))

	h := NewFileHasher(fs, nil, 0)
	for _, loc := range []string{"/key.bin", "file:///key.bin", "/keys/../key.bin"} {
		sum, err := h.Hash(loc)
		if err != nil {
			t.Fatalf("Hash(%q): %v", loc, err)
		}
		if !bytes.Equal(sum, want) {
			t.Errorf("Hash(%q) = %x", loc, sum)
		}
	}
	if h.Len() != 1 {
		t.Errorf("equivalent locators produced %d cache entries, want 1", h.Len())
	}

	sum, err := h.Hash("")
	if sum != nil || err != nil {
		t.Errorf("Hash(\"\") = %x, %v, want nil, nil", sum, err)
	}

	if _, err := h.Hash("/missing.bin"); !IsIOError(err) {
		t.Errorf("missing file error = %v, want IOError", err)
	}

	_, err = h.Hash("ftp://example.com/key")
	if !IsValidationError(err) || !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("ftp locator error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestFileHasher_Remote(t *testing.T) {
	var (
		hits    atomic.Int32
		body    atomic.Value
		lastMod atomic.Value
	)
	body.Store("remote key v1")
	lastMod.Store(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/key":
			w.Header().Set("Last-Modified", lastMod.Load().(time.Time).Format(http.TimeFormat))
			w.Write([]byte(body.Load().(string)))
		case "/undated":
			w.Write([]byte(body.Load().(string)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewFileHasher(newTestFS(t), srv.Client(), 0)

	first, err := h.Hash(srv.URL + "/key")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, sha512Of([]byte("remote key v1"))) {
		t.Errorf("remote digest = %x", first)
	}

	body.Store("remote key v2")
	again, err := h.Hash(srv.URL + "/key")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, first) {
		t.Error("remote digest recomputed although Last-Modified did not change")
	}

	lastMod.Store(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	updated, err := h.Hash(srv.URL + "/key")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(updated, sha512Of([]byte("remote key v2"))) {
		t.Error("remote digest not recomputed after Last-Modified changed")
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}

	// without Last-Modified nothing is cached
	before := h.Len()
	if _, err := h.Hash(srv.URL + "/undated"); err != nil {
		t.Fatal(err)
	}
	if h.Len() != before {
		t.Error("undated resource was cached")
	}

	if _, err := h.Hash(srv.URL + "/missing"); !IsIOError(err) {
		t.Errorf("404 error = %v, want IOError", err)
	} else if !strings.Contains(err.Error(), "404") {
		t.Errorf("404 error should mention the status: %v", err)
	}
}

func TestNewProxyClient(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://proxy.internal:3128")
	t.Setenv("NO_PROXY", "direct.example.com")

	c := NewProxyClient(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport is %T", c.Transport)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://keys.example.com/k", nil)
	u, err := tr.Proxy(req)
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.Host != "proxy.internal:3128" {
		t.Errorf("proxy for keys.example.com = %v", u)
	}

	req, _ = http.NewRequest(http.MethodGet, "http://direct.example.com/k", nil)
	if u, _ := tr.Proxy(req); u != nil {
		t.Errorf("NO_PROXY host was proxied through %v", u)
	}
}

func TestHashReader(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 1000)
	for _, bufSize := range []int{0, 1, 7, 4096} {
		sum, err := HashReader(bytes.NewReader(data), bufSize)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(sum, sha512Of(data)) {
			t.Errorf("bufSize %d: wrong digest", bufSize)
		}
	}
	if _, err := HashReader(nil, 0); err == nil {
		t.Error("HashReader(nil) should fail")
	}
}
