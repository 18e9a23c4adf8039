package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("saxpush.client")

// Source is an opened input document, already decompressed.
type Source struct {
	Name string
	Size int64 // bytes before decompression, -1 when unknown

	r       io.Reader
	closers []io.Closer
}

func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the decompressor and the underlying file or response body.
func (s *Source) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open opens src: "-" for stdin, an http(s) URL or a file path. Compressed
// input is detected from the file extension, the Content-Encoding header or
// the leading magic bytes.
func Open(ctx context.Context, src string) (*Source, error) {
	switch {
	case src == "" || src == "-":
		return newSource("stdin", -1, io.NopCloser(os.Stdin), "")
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return fetch(ctx, src)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return newSource(src, size, f, encodingForName(src))
}

func newSource(name string, size int64, rc io.ReadCloser, encoding string) (*Source, error) {
	r, closer, err := decompress(rc, encoding)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
	}
	s := &Source{Name: name, Size: size, r: r, closers: []io.Closer{rc}}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	return s, nil
}

// getHTTPClient returns a singleton HTTP client
var (
	httpClient     *http.Client
	httpClientOnce sync.Once
	defaultTimeout = 60 * time.Second
)

func getHTTPClient(ctx context.Context) *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: true, // bodies are decoded by decompress
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		// Add context-aware dial options
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext

		httpClient = &http.Client{
			Transport: transport,
		}
	})

	// Check if there's a timeout in the context
	if deadline, ok := ctx.Deadline(); ok {
		// Create a clone of the default client with the context timeout
		clientCopy := *httpClient
		clientCopy.Timeout = time.Until(deadline)
		return &clientCopy
	}

	// Return default client with default timeout
	clientCopy := *httpClient
	clientCopy.Timeout = defaultTimeout
	return &clientCopy
}

// fetch requests url and returns its body as a Source.
func fetch(ctx context.Context, url string) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	req.Header.Set("User-Agent", "saxpush")
	if token := tokenForHost(req.URL.Hostname()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := getHTTPClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if err := resp.Body.Close(); err != nil {
			log.Warningf("failed to close response body: %s", err)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	log.Debugf("fetched %s (%s, %d bytes)", url, resp.Header.Get("Content-Type"), resp.ContentLength)

	encoding := encodingForHeader(resp.Header.Get("Content-Encoding"))
	if encoding == "" {
		encoding = encodingForName(filepath.Base(req.URL.Path))
	}
	return newSource(url, resp.ContentLength, resp.Body, encoding)
}
