package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
	maxErrorBody    = 4 << 10
)

// httpTransport posts JSON to a provider and retries transient failures
// (timeouts, 408, 429, 5xx) with exponential backoff.
type httpTransport struct {
	provider string
	client   *http.Client
	headers  http.Header
	attempts uint64
	backoff  time.Duration
}

func newHTTPTransport(provider string, timeout time.Duration, headers http.Header) *httpTransport {
	return &httpTransport{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		headers:  headers,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

func (t *httpTransport) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", t.provider, err)
	}

	attempts, base := t.attempts, t.backoff
	if attempts == 0 {
		attempts = 1
	}
	if base <= 0 {
		base = defaultBackoff
	}
	b := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := t.post(ctx, url, payload, out)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (t *httpTransport) post(ctx context.Context, url string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", t.provider, err)
	}
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return newProviderError(t.provider, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", t.provider, err)
	}
	return nil
}
