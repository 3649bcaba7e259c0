// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/services"
	"github.com/desertthunder/vmx/internal/shared"
)

// MockCatalog is a test double for [services.Catalog]
type MockCatalog struct {
	Items []models.CatalogItem
	Err   error
	Calls atomic.Int32
}

func (m *MockCatalog) FetchAll(ctx context.Context) ([]models.CatalogItem, error) {
	m.Calls.Add(1)
	if m.Err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrCatalogFetch, m.Err)
	}
	return m.Items, nil
}

func (m *MockCatalog) Name() string { return "mock" }

// MockFetcher is a test double for [services.Fetcher].
//
// Sizes maps a link to the number of bytes written; a link absent from Sizes fails with
// [shared.ErrBadStatus]. Errs and Panics force a failure for a link. With Hang set, a
// transfer writes a partial file and blocks until its context is done.
type MockFetcher struct {
	Sizes  map[string]int64
	Errs   map[string]error
	Panics map[string]bool
	Delay  time.Duration
	Hang   bool

	// Started receives the link of every transfer as it begins, when non-nil.
	Started chan string

	mu       sync.Mutex
	streamed []string
	fetched  []string

	active    atomic.Int32
	maxActive atomic.Int32
}

func (m *MockFetcher) Stream(ctx context.Context, link, dst string, obs services.Observer) (int64, error) {
	m.mu.Lock()
	m.streamed = append(m.streamed, link)
	m.mu.Unlock()
	return m.transfer(ctx, link, dst, obs)
}

func (m *MockFetcher) Fetch(ctx context.Context, link, dst string, obs services.Observer) (int64, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, link)
	m.mu.Unlock()
	return m.transfer(ctx, link, dst, obs)
}

// Streamed returns the links transferred with Stream.
func (m *MockFetcher) Streamed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.streamed...)
}

// Fetched returns the links transferred with Fetch.
func (m *MockFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

// Calls returns how many transfers were started for link.
func (m *MockFetcher) Calls(link string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, calls := range [][]string{m.streamed, m.fetched} {
		for _, l := range calls {
			if l == link {
				n++
			}
		}
	}
	return n
}

// MaxActive returns the highest number of transfers observed in flight at once.
func (m *MockFetcher) MaxActive() int {
	return int(m.maxActive.Load())
}

func (m *MockFetcher) transfer(ctx context.Context, link, dst string, obs services.Observer) (int64, error) {
	active := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.maxActive.Load()
		if active <= peak || m.maxActive.CompareAndSwap(peak, active) {
			break
		}
	}

	if m.Started != nil {
		m.Started <- link
	}

	if m.Panics[link] {
		panic("mock fetcher panic: " + link)
	}

	if m.Hang {
		part := dst + services.PartSuffix
		os.WriteFile(part, []byte("partial"), 0644)
		<-ctx.Done()
		os.Remove(part)
		return 0, ctx.Err()
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if err, ok := m.Errs[link]; ok {
		return 0, err
	}

	size, ok := m.Sizes[link]
	if !ok {
		return 0, fmt.Errorf("%w: 404 for %s", shared.ErrBadStatus, link)
	}

	if err := os.WriteFile(dst, bytes.Repeat([]byte("x"), int(size)), 0644); err != nil {
		return 0, err
	}
	if obs != nil {
		obs.OnProgress(size/2, size)
		obs.OnProgress(size, size)
	}
	return size, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// MustWriteFile creates a file with the given size filled with placeholder bytes.
func MustWriteFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
