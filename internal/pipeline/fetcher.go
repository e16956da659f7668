package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/concord/internal/analyze"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/util"
)

// fetchSleepFunc is swapped out in tests
var fetchSleepFunc = time.Sleep

const maxFetchAttempts = 3

// ErrTooLarge is returned when a source exceeds the configured size limit
var ErrTooLarge = errors.New("source exceeds size limit")

// Fetcher reads fact stores from local paths or http(s) URLs
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
}

// NewFetcher creates a new Fetcher. With respectRobots set, URLs disallowed
// by the host's robots.txt are refused.
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, respectRobots bool, httpProxy, httpsProxy, noProxy string) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(httpProxy, httpsProxy, noProxy)

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
	if respectRobots {
		f.robots = util.NewRobotsChecker(userAgent, timeout)
	}
	return f
}

// FetchResult contains the raw fact store and where it came from
type FetchResult struct {
	Data    []byte
	Meta    model.FetchMeta
	Subject string
}

// Fetch reads a source once
func (f *Fetcher) Fetch(ctx context.Context, source string) (*FetchResult, error) {
	if isURL(source) {
		return f.fetchURL(ctx, source)
	}
	return f.readFile(source)
}

// FetchWithRetry retries transient HTTP failures (5xx, 429, connection
// errors) with exponential backoff. Local files are read once.
func (f *Fetcher) FetchWithRetry(ctx context.Context, source string) (*FetchResult, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		result, err := f.Fetch(ctx, source)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == maxFetchAttempts || ctx.Err() != nil {
			break
		}
		fetchSleepFunc(backoff)
		backoff *= 2
	}

	return nil, lastErr
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (*FetchResult, error) {
	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", rawURL)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, */*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return nil, err
	}

	finalURL := resp.Request.URL.String()
	meta := model.FetchMeta{
		Kind:         model.SourceURL,
		Location:     finalURL,
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
		Size:         int64(len(body)),
		Headers:      make(map[string]string),
	}
	for _, key := range []string{"Content-Length", "Server", "Cache-Control"} {
		if val := resp.Header.Get(key); val != "" {
			meta.Headers[key] = val
		}
	}

	return &FetchResult{
		Data:    body,
		Meta:    meta,
		Subject: SubjectFromSource(finalURL),
	}, nil
}

func (f *Fetcher) readFile(path string) (*FetchResult, error) {
	clean := filepath.Clean(path)

	// #nosec G304 -- the fact store path is supplied by the operator.
	file, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat fact store: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("fact store path is a directory: %s", clean)
	}

	body, err := readLimited(file, f.maxBytes)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		Data: body,
		Meta: model.FetchMeta{
			Kind:         model.SourceFile,
			Location:     clean,
			LastModified: info.ModTime().UTC().Format(time.RFC3339),
			Size:         int64(len(body)),
		},
		Subject: SubjectFromSource(clean),
	}, nil
}

// readLimited reads at most maxBytes, failing rather than truncating. A
// truncated document would surface as a confusing parse error.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return body, nil
}

// isRetryableFetchError reports whether a fetch failure is worth repeating
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	if strings.HasPrefix(msg, "unexpected status: ") {
		code := strings.TrimPrefix(msg, "unexpected status: ")
		return strings.HasPrefix(code, "5") || strings.HasPrefix(code, "429")
	}

	return strings.HasPrefix(msg, "fetch: ")
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// SubjectFromSource derives a readable subject from a path or URL:
// "https://x/policies/fact_index.json" becomes "Fact Index"
func SubjectFromSource(source string) string {
	name := source
	if isURL(source) {
		parsed, err := url.Parse(source)
		if err != nil {
			return source
		}
		path := strings.Trim(parsed.Path, "/")
		if path == "" {
			return parsed.Host
		}
		segments := strings.Split(path, "/")
		name = segments[len(segments)-1]
	} else {
		name = filepath.Base(source)
	}

	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if name == "" || name == "." || name == "/" {
		return source
	}
	return analyze.FieldLabel(name)
}
