package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/pkg/errors"
)

// HTTPError is returned for responses with a non-2xx status code.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
}

// IsNotFound returns true when the error, or its cause, is a 404 HTTPError.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the status code of an HTTPError cause, or zero.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	if httpErr, ok := errors.Cause(err).(*HTTPError); ok {
		return httpErr.StatusCode
	}
	return 0
}

// Auth applies authentication to a request.
type Auth interface {
	Apply(*http.Request)
}

type basicAuth struct {
	username, password string
}

func (a *basicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.username, a.password)
}

// BasicAuth returns HTTP basic authentication.
func BasicAuth(username, password string) Auth {
	return &basicAuth{username: username, password: password}
}

type bearerAuth struct {
	token string
}

func (a *bearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
}

// BearerAuth returns bearer token authentication.
func BearerAuth(token string) Auth {
	return &bearerAuth{token: token}
}

// Client performs HTTP requests on behalf of the datasets.
type Client struct {
	httpClient  *http.Client
	idleTimeout time.Duration
	tempDir     string
	userAgent   string
}

// Options configures the client.
type Options struct {
	// Timeout bounds connecting, waiting for the response headers and every
	// pause while reading the body. The total duration of a download is
	// bounded by the request context only.
	Timeout time.Duration
	TempDir string
	// HTTPClient overrides the underlying client, Timeout still applies to body reads.
	HTTPClient *http.Client
}

// New returns a new client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport(opts.Timeout)}
	}
	return &Client{
		httpClient:  httpClient,
		idleTimeout: opts.Timeout,
		tempDir:     opts.TempDir,
		userAgent:   "geoingest",
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}
	return transport
}

// ErrIdleTimeout is the cause of a failed body read when no data arrived within the timeout.
var ErrIdleTimeout = errors.New("no data received within the idle timeout")

// idleTimeoutBody cancels the request when a read makes no progress for the
// timeout. The timer restarts on every successful read.
type idleTimeoutBody struct {
	sync.Mutex
	body    io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
	cancel  context.CancelFunc
	expired bool
}

func newIdleTimeoutBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutBody {
	b := &idleTimeoutBody{body: body, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, b.expire)
	return b
}

func (b *idleTimeoutBody) expire() {
	b.Lock()
	b.expired = true
	b.Unlock()
	b.cancel()
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.Lock()
	defer b.Unlock()
	if b.expired {
		return n, ErrIdleTimeout
	}
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	err := b.body.Close()
	b.cancel()
	return err
}

// Request describes a single request.
type Request struct {
	Method  string
	URL     string
	Auth    Auth
	Headers map[string]string
	Body    io.Reader
}

// Do executes the request and returns the response if the status is 2xx.
// The caller closes the body.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed building request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Auth != nil {
		r.Auth.Apply(req)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "request to %s failed", r.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &HTTPError{URL: r.URL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if c.idleTimeout > 0 {
		resp.Body = newIdleTimeoutBody(resp.Body, c.idleTimeout, cancel)
	} else {
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// GetBytes reads the whole response body.
func (c *Client) GetBytes(ctx context.Context, url string, auth Auth) ([]byte, error) {
	resp, err := c.Do(ctx, Request{URL: url, Auth: auth})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading response of %s", url)
	}
	return data, nil
}

// Head returns the status code of a HEAD request. Non-2xx codes are not errors here.
func (c *Client) Head(ctx context.Context, url string) (int, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodHead, URL: url})
	if err != nil {
		if code := StatusCode(err); code != 0 {
			return code, nil
		}
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// DownloadTo streams the response body into out, creating parent directories.
func (c *Client) DownloadTo(ctx context.Context, url, out string, auth Auth) (int64, error) {
	resp, err := c.Do(ctx, Request{URL: url, Auth: auth})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := utils.EnsureParentDirectory(out); err != nil {
		return 0, errors.Wrap(err, "failed creating download directory")
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, errors.Wrap(err, "failed opening download target")
	}
	written, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(out)
		return written, errors.Wrapf(copyErr, "failed downloading %s", url)
	}
	return written, closeErr
}

// DownloadTemp downloads into a new temporary file with the given suffix and returns its path.
// The caller removes the file.
func (c *Client) DownloadTemp(ctx context.Context, url, suffix string, auth Auth) (string, error) {
	f, err := os.CreateTemp(c.tempDir, "geoingest-*"+suffix)
	if err != nil {
		return "", errors.Wrap(err, "failed creating temporary file")
	}
	path := f.Name()
	f.Close()
	if _, err := c.DownloadTo(ctx, url, path, auth); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ByteRange is an inclusive range of bytes in a remote file.
type ByteRange struct {
	Offset int64
	Length int64
}

// DownloadRanges appends the given byte ranges of url to w, in order.
// Adjacent ranges are merged into a single request.
func (c *Client) DownloadRanges(ctx context.Context, url string, ranges []ByteRange, w io.Writer) (int64, error) {
	var total int64
	for _, r := range MergeRanges(ranges) {
		resp, err := c.Do(ctx, Request{
			URL:     url,
			Headers: map[string]string{"Range": fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)},
		})
		if err != nil {
			return total, err
		}
		if resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			return total, fmt.Errorf("server did not honour range request for %s: %s", url, resp.Status)
		}
		written, err := io.Copy(w, resp.Body)
		resp.Body.Close()
		total += written
		if err != nil {
			return total, errors.Wrapf(err, "failed downloading range of %s", url)
		}
	}
	return total, nil
}

// MergeRanges merges adjacent ranges, preserving order.
func MergeRanges(ranges []ByteRange) []ByteRange {
	result := []ByteRange{}
	for _, r := range ranges {
		if n := len(result); n > 0 && result[n-1].Offset+result[n-1].Length == r.Offset {
			result[n-1].Length += r.Length
			continue
		}
		result = append(result, r)
	}
	return result
}
