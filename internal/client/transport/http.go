package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldlabs/hydrosync/internal/common"
)

// HTTPCaller talks to the server's JSON sync endpoint with a bearer token.
type HTTPCaller struct {
	baseURL   string
	authToken string
	client    *http.Client
}

func NewHTTPCaller(baseURL, authToken string) *HTTPCaller {
	return &HTTPCaller{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPCaller) Sync(ctx context.Context, deviceID string, req *SyncRequest) (*SyncResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/sync/%s", c.baseURL, deviceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Offline or unreachable: the caller retries with backoff.
		return nil, fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		res := &SyncResult{}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, fmt.Errorf("failed to decode sync response: %w", err)
		}
		return res, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, common.ErrUnauthorized
	case resp.StatusCode >= 500:
		// A sick server is as retryable as a dead link.
		return nil, fmt.Errorf("%w: server returned %d", common.ErrNetwork, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sync rejected with status %d: %s", resp.StatusCode, msg)
	}
}
