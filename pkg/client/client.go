package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// APIError is returned for any non-2xx response from the ledger API.
type APIError struct {
	StatusCode int
	Code       string // ledger error code, e.g. "InsufficientBalance"; may be empty
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger API %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger API %d: %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an *APIError carrying the given ledger code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client is the tokenledger SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client

	// token state, guarded by mu
	mu          sync.Mutex
	principal   string
	secret      string
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained caller token to every request.
// The token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithCredentials makes the client log in lazily as principal and refresh
// its caller token shortly before it expires.
func WithCredentials(principal, secret string) Option {
	return func(c *Client) error {
		if principal == "" || secret == "" {
			return errors.New("principal and secret are required")
		}
		c.principal = principal
		c.secret = secret
		return nil
	}
}

// New creates a Client for the ledgerd HTTP API at base, e.g.
// "http://localhost:8080".
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithCredentials("alice", os.Getenv("LEDGER_SECRET")),
//	)
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// LoginResult is the response of POST /api/v1/auth/token.
type LoginResult struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	Principal string `json:"principal"`
}

// Login exchanges principal credentials for a caller token and caches it.
func (c *Client) Login(ctx context.Context, principal, secret string) (*LoginResult, error) {
	res, err := c.login(ctx, principal, secret)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bearerToken = res.Token
	c.tokenExpiry = expiryFor(res.ExpiresIn)
	c.mu.Unlock()
	return res, nil
}

func (c *Client) login(ctx context.Context, principal, secret string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"principal": principal, "secret": secret}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/token", "", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refresh 60 s before actual expiry to avoid clock-skew failures.
func expiryFor(expiresIn int) time.Time {
	const refreshBuffer = 60 * time.Second
	return time.Now().Add(time.Duration(expiresIn)*time.Second - refreshBuffer)
}

// ensureToken returns a usable bearer token, logging in again when the
// cached one is missing or close to expiry and credentials are configured.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.principal == "" {
		if c.bearerToken != "" {
			return c.bearerToken, nil
		}
		return "", errors.New("no caller token: call Login or use WithCredentials/WithBearerToken")
	}

	res, err := c.login(ctx, c.principal, c.secret)
	if err != nil {
		return "", fmt.Errorf("login as %q: %w", c.principal, err)
	}
	c.bearerToken = res.Token
	c.tokenExpiry = expiryFor(res.ExpiresIn)
	return c.bearerToken, nil
}

// get performs an unauthenticated GET.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, "", nil, out)
}

// post performs an authenticated POST.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, path, token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBytes, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(respBytes))
		}
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
