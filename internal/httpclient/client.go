// Package httpclient holds the JSON request helper used for calls the vendor
// SDKs do not cover, such as the release check.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is kept on UpstreamError.
const maxErrorBody = 4 << 10

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SendJSON sends body as JSON (when non-nil) and decodes a 2xx reply into
// response (when non-nil). Non-2xx replies become *UpstreamError.
func SendJSON(ctx context.Context, client Doer, method, url string, headers map[string]string, body, response any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: respBody, URL: url}
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
