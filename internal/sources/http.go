// Package sources holds the HTTP plumbing shared by the platform adapters.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// UserAgent is sent with every upstream request that does not set its own
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) vodchat/1.0"

// ErrNotFound is returned when the upstream says the item does not exist
var ErrNotFound = errors.New("not found")

// StatusError is an unexpected upstream HTTP status
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// limitedTransport waits on a shared limiter before every round trip
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient creates the client every source shares. rps <= 0 disables
// throttling; timeout bounds a single request, not a whole item.
func NewHTTPClient(rps float64, timeout time.Duration) *http.Client {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &limitedTransport{
			base:    http.DefaultTransport,
			limiter: rate.NewLimiter(limit, burst),
		},
	}
}

// Check turns a non-2xx response into an error. 404 wraps ErrNotFound.
func Check(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	serr := &StatusError{URL: resp.Request.URL.Redacted(), Code: resp.StatusCode}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, serr)
	}
	return serr
}

// Do sends req and returns the body of a successful response
func Do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := Check(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// GetJSON performs a GET with the given headers and decodes the JSON body into v
func GetJSON(ctx context.Context, client *http.Client, url string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vals := range header {
		req.Header[k] = vals
	}

	body, err := Do(client, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", req.URL.Redacted(), err)
	}
	return nil
}
