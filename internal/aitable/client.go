// Package aitable provides a minimal client for the AITable datasheet API.
package aitable

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://aitable.ai/fusion"

// Client is a minimal HTTP client for the AITable API. It holds no mutable
// state and is safe for concurrent use.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	// Observe, when set, is called once per completed outbound request.
	Observe func(method, endpoint string, status int, elapsed time.Duration)
}

// New returns a new client. If httpClient is nil, a default with 30s timeout is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: httpClient}
}

// Response is the envelope every AITable endpoint answers with.
type Response struct {
	Success bool            `json:"success"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Err converts a success:false envelope into a RemoteAPIError.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	return &RemoteAPIError{StatusCode: http.StatusOK, Code: r.Code, Message: r.Message}
}

// Decode unmarshals the envelope data into v after checking the success flag.
func (r *Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(err, "decoding response data")
	}
	return nil
}

// Call issues an authenticated JSON request against BaseURL+endpoint. Caller
// headers are merged over the defaults. A non-2xx status fails with a
// RemoteAPIError even when the body also carries success:false; a 2xx body
// with success:false is returned as-is for the caller to inspect.
func (c *Client) Call(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s %s", method, endpoint)
	}
	merged := map[string]string{
		"Authorization": "Bearer " + c.Token,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	}
	for k, v := range headers {
		merged[k] = v
	}
	for k, v := range merged {
		req.Header.Set(k, v)
	}
	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) (*Response, error) {
	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.observe(req.Method, endpoint, 0, started)
		return nil, errors.Wrapf(err, "%s %s", req.Method, endpoint)
	}
	defer resp.Body.Close()
	c.observe(req.Method, endpoint, resp.StatusCode, started)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	var out Response
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteAPIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Code:       out.Code,
			Message:    out.Message,
		}
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "decoding response body")
	}
	return &out, nil
}

func (c *Client) observe(method, endpoint string, status int, started time.Time) {
	if c.Observe != nil {
		c.Observe(method, endpoint, status, time.Since(started))
	}
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	resp, err := c.Call(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}
