package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/h2non/filetype"
)

// Fetcher obtains the raw payload behind a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// DefaultMaxSize is the payload limit used by configured fetchers.
const DefaultMaxSize = 256 << 20

// HTTPFetcher reads http(s) URLs, file:// URLs and plain filesystem paths.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
	// MaxSize limits payload size in bytes. 0: unlimited
	MaxSize int64
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, Timeout: timeout}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	data, err := f.fetch(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, locator, err)
	}
	if err := Sniff(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, locator, err)
	}
	return data, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil || len(u.Scheme) <= 1 {
		// plain path (or a windows drive letter)
		return f.readFile(locator)
	}
	switch u.Scheme {
	case "file":
		return f.readFile(u.Path)
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("http status %s", res.Status)
	}
	var r io.Reader = res.Body
	if f.MaxSize > 0 {
		r = io.LimitReader(r, f.MaxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.MaxSize > 0 && int64(len(data)) > f.MaxSize {
		return nil, fmt.Errorf("payload exceeds %d bytes", f.MaxSize)
	}
	return data, nil
}

func (f *HTTPFetcher) readFile(path string) ([]byte, error) {
	if f.MaxSize > 0 {
		if st, err := os.Stat(path); err == nil && st.Size() > f.MaxSize {
			return nil, fmt.Errorf("payload exceeds %d bytes", f.MaxSize)
		}
	}
	return os.ReadFile(path)
}

// Sniff rejects payloads whose magic numbers identify a known non-model file type.
func Sniff(data []byte) error {
	head := data
	if len(head) > 262 {
		head = head[:262]
	}
	if filetype.IsImage(head) || filetype.IsArchive(head) || filetype.IsVideo(head) ||
		filetype.IsAudio(head) || filetype.IsDocument(head) {
		kind, _ := filetype.Match(head)
		return fmt.Errorf("%w: %s", ErrUnsupportedPayload, kind.MIME.Value)
	}
	return nil
}
