package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/desertthunder/vmx/internal/shared"
)

// PartSuffix marks a file that is still being written.
const PartSuffix = ".part"

const defaultChunkSize = 32 * 1024

// HTTPFetcher implements [Fetcher] over plain HTTP GET requests.
type HTTPFetcher struct {
	httpClient *http.Client
	chunkSize  int
}

// NewHTTPFetcher creates a fetcher using client, which defaults to [http.DefaultClient].
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{httpClient: client, chunkSize: defaultChunkSize}
}

// Stream copies the response body to dst chunk by chunk, reporting progress after each
// chunk. Returns the number of bytes written.
func (f *HTTPFetcher) Stream(ctx context.Context, link, dst string, obs Observer) (int64, error) {
	resp, err := f.get(ctx, link)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body := &progressReader{r: resp.Body, total: max(resp.ContentLength, 0), obs: obs}
	return writeAtomic(dst, func(w io.Writer) (int64, error) {
		return io.CopyBuffer(w, body, make([]byte, f.chunkSize))
	})
}

// Fetch reads the whole response body into memory, reporting progress as it is read,
// then writes it to dst. Returns the number of bytes written.
func (f *HTTPFetcher) Fetch(ctx context.Context, link, dst string, obs Observer) (int64, error) {
	resp, err := f.get(ctx, link)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body := &progressReader{r: resp.Body, total: max(resp.ContentLength, 0), obs: obs}
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	return writeAtomic(dst, func(w io.Writer) (int64, error) {
		return io.Copy(w, bytes.NewReader(data))
	})
}

func (f *HTTPFetcher) get(ctx context.Context, link string) (*http.Response, error) {
	if link == "" {
		return nil, fmt.Errorf("%w: empty download link", shared.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d from %s", shared.ErrBadStatus, resp.StatusCode, req.URL.Host)
	}

	return resp, nil
}

// writeAtomic writes to dst+[PartSuffix], syncs, and renames into place. The partial
// file is removed on any failure.
func writeAtomic(dst string, write func(io.Writer) (int64, error)) (n int64, err error) {
	tmp := dst + PartSuffix

	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	if n, err = write(out); err != nil {
		return n, fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err = out.Sync(); err != nil {
		return n, fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err = out.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return n, fmt.Errorf("failed to rename %s: %w", tmp, err)
	}

	return n, nil
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	obs   Observer
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		notify(p.obs, p.done, p.total)
	}
	return n, err
}
