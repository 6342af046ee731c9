// Package fetch retrieves datafile documents over HTTP. The default
// client retries transient failures with exponential backoff and carries
// an OpenTelemetry-instrumented transport.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	requestTimeout  = 10 * time.Second
	maxRetryElapsed = 30 * time.Second
)

// ErrInvalidURL marks a datafile URL that can never succeed; callers
// should log it and not retry.
var ErrInvalidURL = errors.New("fetch: invalid datafile url")

// StatusError is returned when the server responds with an HTTP error
// status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client fetches datafiles. The zero value is not usable; call New.
type Client struct {
	httpClient *http.Client
}

// New returns a fetch client. A nil httpClient selects the default client
// with an otelhttp transport.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{httpClient: httpClient}
}

// Datafile fetches the document at rawURL, retrying transient failures
// until ctx is done or the backoff budget is spent.
func (c *Client) Datafile(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.MaxElapsedTime = maxRetryElapsed
	policy := backoff.WithContext(exponential, ctx)

	var body []byte
	operation := func() error {
		var fetchErr error
		body, fetchErr = c.fetchOnce(ctx, rawURL)
		var statusErr *StatusError
		if errors.As(fetchErr, &statusErr) && statusErr.StatusCode < 500 {
			// Client errors will not heal on retry.
			return backoff.Permanent(fetchErr)
		}
		return fetchErr
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return body, nil
}
