package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// LiveProvider talks to the external custody service over HTTP. Every call
// has an explicit timeout; on timeout or error the caller leaves local
// records pending; completion is only ever asserted by a confirmation
// webhook.
type LiveProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewLiveProvider builds a LiveProvider with the given request timeout.
func NewLiveProvider(baseURL, apiKey string, timeout time.Duration) *LiveProvider {
	return &LiveProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *LiveProvider) Mode() string { return "live" }

func (p *LiveProvider) MintToken(ctx context.Context, req MintRequest) (*Result, error) {
	return p.post(ctx, "/v1/tokens/mint", req)
}

func (p *LiveProvider) SubmitPayoutBatch(ctx context.Context, req PayoutBatchRequest) (*Result, error) {
	return p.post(ctx, "/v1/payouts/batch", req)
}

func (p *LiveProvider) TransferToken(ctx context.Context, tokenID, newOwnerID string) (*Result, error) {
	return p.post(ctx, "/v1/tokens/transfer", map[string]string{
		"token_id":     tokenID,
		"new_owner_id": newOwnerID,
	})
}

func (p *LiveProvider) CreateWallet(ctx context.Context, userID string) (*Result, error) {
	return p.post(ctx, "/v1/wallets", map[string]string{"user_id": userID})
}

func (p *LiveProvider) post(ctx context.Context, path string, body interface{}) (*Result, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("custody request failed; local records stay pending")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("custody %s: status %d", path, resp.StatusCode)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("custody %s: decode response: %w", path, err)
	}
	if out.Status == "" {
		out.Status = StatusSubmitted
	}
	return &out, nil
}
