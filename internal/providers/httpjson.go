package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const (
	searchClientTimeout = 15 * time.Second
	answerClientTimeout = 60 * time.Second
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// encodeJSONBody marshals v for use as a request body.
func encodeJSONBody(provider string, v any) (io.Reader, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", provider, err)
	}
	return bytes.NewReader(payload), nil
}

// doJSON executes req and decodes a 2xx JSON body into out. Transport
// failures, error statuses, and undecodable bodies all come back as
// *types.ProviderError so the ledger carries a uniform taxonomy.
func doJSON(client *http.Client, provider string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &types.ProviderError{
			Provider: provider,
			Kind:     types.ErrorKindHTTP,
			Message:  err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(provider, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.ProviderError{
			Provider: provider,
			Kind:     types.ErrorKindBadResponse,
			Message:  fmt.Sprintf("decode response: %v", err),
		}
	}
	return nil
}

// statusError classifies a non-2xx status and keeps a short body
// excerpt as the message. 401/403 mean credentials, 429 means the
// vendor throttled us; everything else stays a generic HTTP failure.
func statusError(provider string, resp *http.Response) *types.ProviderError {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	kind := types.ErrorKindHTTP
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = types.ErrorKindAuth
	case http.StatusTooManyRequests:
		kind = types.ErrorKindRateLimited
	}
	message := strings.TrimSpace(string(excerpt))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &types.ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   resp.StatusCode,
		Message:  message,
	}
}
