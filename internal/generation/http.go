package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ent0n29/agentforge/internal/reliability"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// postJSON sends payload and decodes the JSON response into out, retrying
// transport errors and retryable status codes under policy.
func postJSON(ctx context.Context, client *http.Client, policy reliability.Policy, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		res, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("send request: %w", err)
			}
			return reliability.Retryable(fmt.Errorf("send request: %w", err))
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			statusErr := fmt.Errorf("http status %d: %s", res.StatusCode, bytes.TrimSpace(snippet))
			if reliability.IsRetryableHTTPStatus(res.StatusCode) {
				return reliability.Retryable(statusErr)
			}
			return statusErr
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
