package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("provider returned %d", e.StatusCode)
}

// IsAuthError reports whether err is, or wraps, a 401/403 provider response.
func IsAuthError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}

// Client is a thin HTTP transport bound to one provider base URL. It injects
// the adapter's credentials into each request and, when a call comes back
// 401/403, invokes the adapter's refresh hook exactly once and re-issues the
// request. All other failures surface immediately.
type Client struct {
	baseURL   string
	http      *http.Client
	authorize func(*http.Request)
	refresh   func(context.Context) (bool, error)
	log       *zap.Logger
}

// NewClient builds a transport for the given base URL and timeout.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SetAuthorize installs the per-request credential injector.
func (c *Client) SetAuthorize(fn func(*http.Request)) { c.authorize = fn }

// SetRefresh installs the credential refresh hook invoked on 401/403.
func (c *Client) SetRefresh(fn func(context.Context) (bool, error)) { c.refresh = fn }

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, query, body, out)
}

// PutJSON issues a PUT with a JSON body and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPut, path, query, body, out)
}

// PatchJSON issues a PATCH with a JSON body and decodes the response into out.
func (c *Client) PatchJSON(ctx context.Context, path string, query url.Values, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPatch, path, query, body, out)
}

// PostForm issues a POST with form-encoded values and decodes the response into out.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, nil), strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if c.authorize != nil {
			c.authorize(req)
		}
		return c.execute(req, out)
	}
	return c.withRefresh(ctx, attempt)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	attempt := func() error {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request body: %w", err)
			}
			reader = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.authorize != nil {
			c.authorize(req)
		}
		return c.execute(req, out)
	}
	return c.withRefresh(ctx, attempt)
}

// withRefresh runs the attempt, and on an authorization failure asks the
// adapter to refresh its credentials once before a single re-attempt.
func (c *Client) withRefresh(ctx context.Context, attempt func() error) error {
	err := attempt()
	if err == nil || !IsAuthError(err) || c.refresh == nil {
		return err
	}

	c.log.Debug("provider call unauthorized, refreshing credentials")
	ok, refreshErr := c.refresh(ctx)
	if refreshErr != nil {
		return fmt.Errorf("credential refresh: %w", refreshErr)
	}
	if !ok {
		return err
	}
	return attempt()
}

func (c *Client) execute(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// tokenExpiry extracts the exp claim from a JWT access token. Providers that
// omit expires_in in their token response usually issue JWTs; the claim is
// read without signature verification since we only use it for scheduling.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
