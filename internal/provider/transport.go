package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport is the shared HTTP layer for provider calls. Every request
// carries the static API key header and JSON content type; responses are
// decoded and non-2xx statuses are translated before anything reaches the
// cache or loader.
type Transport struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewTransport(baseURL, apiKey string, timeout time.Duration) *Transport {
	if timeout == 0 {
		timeout = 12 * time.Second
	}
	return &Transport{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// DoJSON issues a request and decodes the response body into target (which
// may be nil to discard). The bearer token is attached only when non-empty.
func (t *Transport) DoJSON(ctx context.Context, method, path string, query url.Values, body any, bearer string, target any) error {
	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransportFailure, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransportFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 256 {
			msg = msg[:256] + "...(truncated)"
		}
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: msg}
	}

	if target == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, target); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (t *Transport) GetJSON(ctx context.Context, path string, query url.Values, bearer string, target any) error {
	return t.DoJSON(ctx, http.MethodGet, path, query, nil, bearer, target)
}

// StatusError is a non-2xx provider response. 5xx unwraps to
// ErrTransportFailure so callers can classify without string matching.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Status >= 500 {
		return ErrTransportFailure
	}
	return nil
}
