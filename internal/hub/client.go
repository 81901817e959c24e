package hub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// apiBasePath is the version prefix of every hub endpoint.
const apiBasePath = "/v1.0"

// retryDelay is the fixed pause between attempts of the same request.
const retryDelay = 500 * time.Millisecond

// APIError is a failed hub response. StatusCode is zero when the failure
// happened below HTTP (timeout, refused connection).
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hub API error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("hub request failed: %v", e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// attemptKey carries the retry counter on a request's context.
type attemptKey struct{}

// Attempt returns the zero-based retry counter attached to a request context
// by the client, or 0 when absent.
func Attempt(ctx context.Context) int {
	if n, ok := ctx.Value(attemptKey{}).(int); ok {
		return n
	}
	return 0
}

// Client is a client for the hub REST API. Every request is signed with a
// fresh time-scoped token derived from the API key.
type Client struct {
	config     Config
	httpClient *http.Client

	// now is stubbed in tests.
	now func() time.Time
}

// NewClient creates a new hub API client.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}
}

// BaseURL returns the address the client is bound to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// authToken computes the per-request token: the hex SHA-256 of the API key
// concatenated with the current unix-millisecond timestamp, followed by that
// timestamp. Tokens are never cached; each attempt gets its own.
func (c *Client) authToken() string {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sum := sha256.Sum256([]byte(c.config.APIKey + ts))
	return hex.EncodeToString(sum[:]) + ts
}

// newRequest creates a signed HTTP request for a single attempt.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + apiBasePath + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("api_token", c.authToken())
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do issues the request, retrying transport errors and non-2xx statuses with
// a fixed delay until the retry budget is spent. The request is rebuilt for
// every attempt so each one carries a fresh token. The returned body is fully
// read and the response closed.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr *APIError

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		rctx := context.WithValue(ctx, attemptKey{}, attempt)
		req, err := c.newRequest(rctx, method, path, body)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &APIError{Err: err}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &APIError{StatusCode: resp.StatusCode, Err: err}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}

		return respBody, nil
	}

	return nil, lastErr
}

// get issues a GET request and decodes the JSON response into out. Decode
// failures are shape errors and are never retried.
func (c *Client) get(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Ping checks that the configured address answers like a real hub: the
// transport must succeed and the bridge document must be well-formed.
func (c *Client) Ping(ctx context.Context) (*BridgeInfo, error) {
	var info BridgeInfo
	if err := c.get(ctx, "/bridge", &info); err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListLocks retrieves all locks known to the hub.
func (c *Client) ListLocks(ctx context.Context) ([]Lock, error) {
	var locks []Lock
	if err := c.get(ctx, "/lock", &locks); err != nil {
		return nil, err
	}
	return locks, nil
}

// GetLock retrieves a single lock by its hub-assigned id.
func (c *Client) GetLock(ctx context.Context, id int) (*Lock, error) {
	var lock Lock
	if err := c.get(ctx, fmt.Sprintf("/lock/%d", id), &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// LockDoor commands the lock to close.
func (c *Client) LockDoor(ctx context.Context, id int) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/lock/%d/lock", id), nil)
	return err
}

// Unlock commands the lock to open with the given mode. UnlockModePull asks
// the lock to release the pull spring in the same motion.
func (c *Client) Unlock(ctx context.Context, id int, mode int) error {
	body, err := json.Marshal(map[string]int{"mode": mode})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/lock/%d/unlock", id), body)
	return err
}

// Pull releases the pull spring without changing the lock state.
func (c *Client) Pull(ctx context.Context, id int) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/lock/%d/pull", id), nil)
	return err
}

// ListCallbacks returns the webhook subscriptions registered with the hub.
func (c *Client) ListCallbacks(ctx context.Context) ([]Callback, error) {
	var callbacks []Callback
	if err := c.get(ctx, "/callback", &callbacks); err != nil {
		return nil, err
	}
	return callbacks, nil
}

// AddCallback registers a webhook subscription and returns its hub-assigned
// id.
func (c *Client) AddCallback(ctx context.Context, url string) (int, error) {
	body, err := json.Marshal(map[string]string{"url": url, "method": "POST"})
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/callback", body)
	if err != nil {
		return 0, err
	}

	var created Callback
	if err := json.Unmarshal(respBody, &created); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	return created.ID, nil
}

// UpdateCallback replaces the URL of an existing subscription.
func (c *Client) UpdateCallback(ctx context.Context, id int, url string) error {
	body, err := json.Marshal(map[string]string{"url": url, "method": "POST"})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, fmt.Sprintf("/callback/%d", id), body)
	return err
}

// DeleteCallback removes a webhook subscription.
func (c *Client) DeleteCallback(ctx context.Context, id int) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/callback/%d", id), nil)
	return err
}
