package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"
	userAgent       = "pooler/1.0"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("hub: unauthorized")
	// ErrInvalidModelID is returned for identifiers that cannot name a hub repo.
	ErrInvalidModelID = errors.New("hub: invalid model id")
	// ErrModelNotFound is returned when the hub has no such repository or
	// revision. A missing file in an existing repository is not an error.
	ErrModelNotFound = errors.New("hub: model not found")
)

// Headers the hub sets on resolve responses.
const (
	headerErrorCode  = "X-Error-Code"
	headerRepoCommit = "X-Repo-Commit"
)

// APIError represents a non-2xx HTTP response other than 404, 401 and 403.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // internal: Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client downloads individual files from a Hugging Face compatible hub into
// a local cache laid out like huggingface_hub's.
type Client struct {
	endpoint   string
	token      string
	revision   string
	cacheDir   string
	maxRetries int
	httpClient *http.Client
	group      singleflight.Group
}

// Option configures Client behavior.
type Option func(*Client)

// WithEndpoint sets the hub base URL.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = strings.TrimSuffix(u, "/") }
}

// WithToken sets the Bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRevision sets the branch, tag or commit files are resolved against.
func WithRevision(rev string) Option {
	return func(c *Client) {
		if rev != "" {
			c.revision = rev
		}
	}
}

// WithCacheDir sets the cache root.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		if dir != "" {
			c.cacheDir = dir
		}
	}
}

// WithRetries sets how many times 429 and 5xx responses are retried.
// The default is 0: a failed lookup is reported, not retried.
func WithRetries(n int) Option {
	return func(c *Client) { c.maxRetries = max(n, 0) }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a Client. HF_ENDPOINT and HF_TOKEN are honored unless
// overridden by options.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		token:    os.Getenv("HF_TOKEN"),
		revision: DefaultRevision,
		cacheDir: DefaultCacheDir(),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	if ep := os.Getenv("HF_ENDPOINT"); ep != "" {
		c.endpoint = strings.TrimSuffix(ep, "/")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheDir returns the cache root.
func (c *Client) CacheDir() string { return c.cacheDir }

// Fetch returns the local path of file name in repo, downloading it into
// the cache when it is not already there. found is false when the
// repository exists but has no such file; an unknown repository or
// revision yields ErrModelNotFound.
//
// Concurrent fetches of the same file share one download. Each caller
// stops waiting when its own ctx is done; the shared download keeps going
// for the others.
func (c *Client) Fetch(ctx context.Context, repo, name string) (localPath string, found bool, err error) {
	if err := validateModelID(repo); err != nil {
		return "", false, err
	}
	if p, ok := c.cached(repo, name); ok {
		return p, true, nil
	}

	key := repo + "@" + c.revision + ":" + name
	ch := c.group.DoChan(key, func() (any, error) {
		return c.download(context.WithoutCancel(ctx), repo, name)
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		p := res.Val.(string)
		return p, p != "", nil
	}
}

// cached looks name up in the snapshot the configured revision points at.
func (c *Client) cached(repo, name string) (string, bool) {
	commit := readRef(c.cacheDir, repo, c.revision)
	if commit == "" {
		commit = c.revision
	}
	p := snapshotPath(c.cacheDir, repo, commit, name)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// download returns the cached path, or "" when the file does not exist
// upstream.
func (c *Client) download(ctx context.Context, repo, name string) (string, error) {
	fileURL := fmt.Sprintf("%s/%s/resolve/%s/%s", c.endpoint, repo, url.PathEscape(c.revision), escapePath(name))

	var lastErr *APIError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoffDelay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
		if err != nil {
			return "", fmt.Errorf("hub: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("hub: GET %s/%s: %w", repo, name, err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			p, err := c.store(repo, name, resp)
			resp.Body.Close()
			return p, err
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			switch code := resp.Header.Get(headerErrorCode); code {
			case "", "EntryNotFound":
				return "", nil
			case "RepoNotFound", "RevisionNotFound":
				return "", fmt.Errorf("%w: %s@%s", ErrModelNotFound, repo, c.revision)
			default:
				return "", &APIError{StatusCode: resp.StatusCode, Body: code}
			}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return "", fmt.Errorf("%w: %s/%s", ErrUnauthorized, repo, name)
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}

		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return "", apiErr
	}

	return "", lastErr
}

// store writes the response body into the snapshot of the commit the hub
// served it from and points the revision's ref at that commit. Without a
// commit header the revision name itself keys the snapshot.
func (c *Client) store(repo, name string, resp *http.Response) (string, error) {
	commit := resp.Header.Get(headerRepoCommit)
	if !validCommit(commit) {
		commit = c.revision
	}
	target := snapshotPath(c.cacheDir, repo, commit, name)
	if err := writeAtomic(target, resp.Body); err != nil {
		return "", err
	}
	if commit != c.revision {
		if err := writeRef(c.cacheDir, repo, c.revision, commit); err != nil {
			return "", err
		}
	}
	return target, nil
}

// validCommit accepts the hex object ids the hub sends in X-Repo-Commit.
func validCommit(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// backoffDelay returns the wait duration before a retry attempt.
func backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 1s, 2s, 4s
	return time.Duration(1<<(attempt-1)) * time.Second
}

// writeAtomic streams r into a temp file beside target, then renames it.
func writeAtomic(target string, r io.Reader) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("hub: create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("hub: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("hub: download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("hub: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("hub: %w", err)
	}
	return nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// validateModelID accepts "name" and "owner/name" identifiers.
func validateModelID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelID)
	}
	parts := strings.Split(id, "/")
	if len(parts) > 2 {
		return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidModelID, id)
		}
	}
	return nil
}
