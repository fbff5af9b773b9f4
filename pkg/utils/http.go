package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

/////////////////////////////////////////////////////////////////////
// Errors
/////////////////////////////////////////////////////////////////////

// NetworkError reports a connect, read or timeout failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("timeout fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ErrIdleTimeout reports a response body that stopped delivering data.
var ErrIdleTimeout = fmt.Errorf("no data received within the read timeout: %w", context.DeadlineExceeded)

// HttpStatusError reports a non-2xx response that is not a followed redirect.
type HttpStatusError struct {
	URL  string
	Code int
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.Code, e.URL)
}

/////////////////////////////////////////////////////////////////////
// Fetcher
/////////////////////////////////////////////////////////////////////

// Source serves locators whose scheme is not http(s), such as file:// or
// sftp:// mirrors.
type Source interface {
	ReadFileBytes(remotePath string, size int64) ([]byte, error)
}

// SourceResolver maps a locator to the Source serving it and the path inside it.
type SourceResolver func(uri string) (Source, string, error)

// ProgressFunc receives a percentage in [0, 100].
type ProgressFunc func(percent int)

// ProgressRange maps the bytes of one transfer into [Low, High].
type ProgressRange struct {
	Low, High int
	Report    ProgressFunc
}

type FetcherOptions struct {
	UserAgent    string
	Timeout      time.Duration // connect, response-header and idle body read timeout
	Attempts     int
	Backoff      time.Duration // multiplied by the attempt number
	QuietBackoff time.Duration
	CacheSize    int // text documents kept in memory, 0 disables the cache
	Sources      SourceResolver
}

func DefaultFetcherOptions() FetcherOptions {
	return FetcherOptions{
		UserAgent:    "mcboot/1.0",
		Timeout:      30 * time.Second,
		Attempts:     3,
		Backoff:      time.Second,
		QuietBackoff: 500 * time.Millisecond,
	}
}

const maxRedirectHops = 1

type Fetcher struct {
	opts   FetcherOptions
	client *http.Client
	cache  *lru.Cache[string, string]
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	def := DefaultFetcherOptions()
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	f := &Fetcher{
		opts: opts,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: opts.Timeout}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
			},
			// Redirects are followed by hand, see get.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sleep: sleepContext,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create document cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// FetchText downloads a text document, retrying the whole request.
func (f *Fetcher) FetchText(ctx context.Context, uri string) (string, error) {
	if f.cache != nil {
		if text, ok := f.cache.Get(uri); ok {
			return text, nil
		}
	}

	var text string
	err := f.retry(ctx, uri, f.opts.Backoff, func() error {
		body, _, err := f.open(ctx, uri)
		if err != nil {
			return err
		}
		defer body.Close()
		b, err := io.ReadAll(body)
		if err != nil {
			return &NetworkError{URL: uri, Err: err}
		}
		text = string(b)
		return nil
	})
	if err != nil {
		return "", err
	}

	if f.cache != nil {
		f.cache.Add(uri, text)
	}
	return text, nil
}

// FetchBinary downloads uri into dest. dest is either fully written or absent
// when FetchBinary returns.
func (f *Fetcher) FetchBinary(ctx context.Context, uri, dest string, pr *ProgressRange) error {
	return f.fetchBinary(ctx, uri, dest, pr, f.opts.Backoff)
}

// FetchBinaryQuiet is FetchBinary for best-effort items: failures are logged
// and reported as false.
func (f *Fetcher) FetchBinaryQuiet(ctx context.Context, uri, dest string) bool {
	if err := f.fetchBinary(ctx, uri, dest, nil, f.opts.QuietBackoff); err != nil {
		logger.Warn("download failed", URLKey, uri, PathKey, dest, ErrorKey, err)
		return false
	}
	return true
}

func (f *Fetcher) fetchBinary(ctx context.Context, uri, dest string, pr *ProgressRange, backoff time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	report := newMonotonicReporter(pr)
	return f.retry(ctx, uri, backoff, func() error {
		return f.download(ctx, uri, dest, report)
	})
}

func (f *Fetcher) download(ctx context.Context, uri, dest string, report func(done, total int64)) error {
	body, total, err := f.open(ctx, uri)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	part := tmp.Name()

	_, err = io.Copy(tmp, &countingReader{r: body, total: total, report: report})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return &NetworkError{URL: uri, Err: err}
	}

	_ = os.Remove(dest)
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}

func (f *Fetcher) retry(ctx context.Context, uri string, backoff time.Duration, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		logger.Debug("fetch attempt failed", URLKey, uri, AttemptKey, attempt, ErrorKey, lastErr)
		if attempt < f.opts.Attempts {
			if err := f.sleep(ctx, time.Duration(attempt)*backoff); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// open returns the body of uri and its declared length (-1 when unknown).
func (f *Fetcher) open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid locator %q: %w", uri, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		attemptCtx, cancel := context.WithCancel(ctx)
		resp, err := f.get(attemptCtx, uri)
		if err != nil {
			cancel()
			return nil, 0, err
		}
		return newIdleReader(resp.Body, f.opts.Timeout, cancel), resp.ContentLength, nil
	}

	if f.opts.Sources == nil {
		return nil, 0, fmt.Errorf("unsupported scheme %q in %s", parsed.Scheme, uri)
	}
	src, remotePath, err := f.opts.Sources(uri)
	if err != nil {
		return nil, 0, &NetworkError{URL: uri, Err: err}
	}
	b, err := src.ReadFileBytes(remotePath, -1)
	if err != nil {
		return nil, 0, &NetworkError{URL: uri, Err: err}
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (f *Fetcher) get(ctx context.Context, uri string) (*http.Response, error) {
	target := uri
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &NetworkError{URL: target, Err: err}
		}

		if isRedirect(resp.StatusCode) && hop < maxRedirectHops {
			loc, err := resp.Location()
			resp.Body.Close()
			if err != nil {
				return nil, &HttpStatusError{URL: target, Code: resp.StatusCode}
			}
			target = loc.String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &HttpStatusError{URL: target, Code: resp.StatusCode}
		}
		return resp, nil
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

/////////////////////////////////////////////////////////////////////
// Progress
/////////////////////////////////////////////////////////////////////

// newMonotonicReporter never reports a value lower than one already reported,
// so a retried transfer does not move the bar backwards.
func newMonotonicReporter(pr *ProgressRange) func(done, total int64) {
	if pr == nil || pr.Report == nil {
		return nil
	}
	last := -1
	return func(done, total int64) {
		if total <= 0 {
			return
		}
		p := pr.Low + int(int64(pr.High-pr.Low)*done/total)
		if p > pr.High {
			p = pr.High
		}
		if p > last {
			last = p
			pr.Report(p)
		}
	}
}

// idleReader aborts the request of body when no byte arrives for timeout.
type idleReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
	cancel  context.CancelFunc
}

func newIdleReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	r := &idleReader{body: body, timeout: timeout, cancel: cancel}
	r.timer = time.AfterFunc(timeout, func() {
		r.fired.Store(true)
		cancel()
	})
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if r.fired.Load() {
		return n, ErrIdleTimeout
	}
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleReader) Close() error {
	r.timer.Stop()
	r.cancel()
	return r.body.Close()
}

type countingReader struct {
	r      io.Reader
	done   int64
	total  int64
	report func(done, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		if c.report != nil {
			c.report(c.done, c.total)
		}
	}
	return n, err
}
