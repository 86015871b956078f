/*
	Package client is a typed HTTP client for the remote image platform.  A Client holds
	one session; open it with Open and release it with Close on every exit path.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coocood/freecache"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/twinj/uuid"
	"golang.org/x/time/rate"
)

// Client provides HTTP access to the image platform under one session.
type Client struct {
	host        string
	http        *http.Client
	limiter     *rate.Limiter
	names       *freecache.Cache
	nameTTL     int
	compression omerokv.Compression

	mu    sync.Mutex
	token string
}

// Open acquires a session on the configured host and checks that the server API is
// compatible.
func Open(ctx context.Context, config Config) (*Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("no host given for image platform client")
	}
	compression, err := omerokv.ParseCompression(config.Compression)
	if err != nil {
		return nil, err
	}
	c := &Client{
		host:        strings.TrimSuffix(config.Host, "/"),
		http:        &http.Client{Timeout: config.timeout()},
		names:       freecache.NewCache(config.nameCacheBytes()),
		nameTTL:     config.nameCacheTTL(),
		compression: compression,
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	var version omerokv.VersionResponse
	if err := c.call(ctx, "GET", "/api/version", nil, &version); err != nil {
		return nil, fmt.Errorf("unable to get API version from %s: %w", c.host, err)
	}
	if err := omerokv.CheckAPIVersion(version.Version); err != nil {
		return nil, err
	}

	var session omerokv.SessionResponse
	req := omerokv.SessionRequest{User: config.User, Password: config.Password}
	if err := c.call(ctx, "POST", "/api/session", req, &session); err != nil {
		return nil, fmt.Errorf("unable to open session on %s as %q: %w", c.host, config.User, err)
	}
	c.setToken(session.Token)
	omerokv.Infof("Opened session on %s (API %s) as %q\n", c.host, version.Version, config.User)
	return c, nil
}

// Close releases the session.  Closing an already closed client is a no-op.
func (c *Client) Close(ctx context.Context) error {
	if c.getToken() == "" {
		return nil
	}
	err := c.call(ctx, "DELETE", "/api/session", nil, nil)
	c.setToken("")
	c.names.Clear()
	if err != nil {
		return fmt.Errorf("closing session on %s: %w", c.host, err)
	}
	omerokv.Debugf("Closed session on %s\n", c.host)
	return nil
}

func (c *Client) getToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// statusError is a non-OK HTTP response.
type statusError struct {
	method string
	path   string
	code   int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.method, e.path, e.code, e.msg)
}

// Unwrap maps status codes to the package sentinel errors.
func (e *statusError) Unwrap() error {
	switch {
	case e.code == http.StatusNotFound:
		return omerokv.ErrNotFound
	case e.code == http.StatusUnauthorized || e.code == http.StatusForbidden:
		return omerokv.ErrUnauthorized
	case e.code >= http.StatusInternalServerError:
		return omerokv.ErrQueryUnavailable
	default:
		return nil
	}
}

// do sends a request and returns the response body if the status is OK.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := uuid.NewV4().String()
	req.Header.Set("X-Request-Id", reqID)

	timedLog := omerokv.NewTimeLog()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response to %s %s: %v", method, path, err)
	}
	timedLog.Debugf("%s %s [%s] returned %d (%d bytes)\n", method, path, reqID, resp.StatusCode, len(data))
	if resp.StatusCode != http.StatusOK {
		var errResp omerokv.ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, &statusError{method: method, path: path, code: resp.StatusCode, msg: msg}
	}
	return data, nil
}

// call sends an optional JSON body and decodes an optional JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	var contentType string
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	data, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bad response to %s %s: %v", method, path, err)
	}
	return nil
}

func queryPath(path string, params url.Values) string {
	return path + "?" + params.Encode()
}
