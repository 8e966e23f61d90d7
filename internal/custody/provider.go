package custody

import (
	"context"
)

// Submission statuses returned by a provider. "confirmed" means the
// operation settled synchronously (sandbox); "submitted" means the result
// will arrive later as a webhook and local records must stay pending.
const (
	StatusConfirmed = "confirmed"
	StatusSubmitted = "submitted"
)

// MintRequest asks the provider to mint an ownership fraction on custody.
type MintRequest struct {
	TokenID          string  `json:"token_id"`
	AssetID          string  `json:"asset_id"`
	OwnerID          string  `json:"owner_id"`
	Fraction         float64 `json:"fraction"`
	InvestmentAmount float64 `json:"investment_amount"`
}

// PayoutItem is one owner's share inside a payout batch submission.
type PayoutItem struct {
	PayoutID string  `json:"payout_id"`
	TokenID  string  `json:"token_id"`
	OwnerID  string  `json:"owner_id"`
	Amount   float64 `json:"amount"`
}

// PayoutBatchRequest submits one distribution batch to custody.
type PayoutBatchRequest struct {
	BatchID string       `json:"batch_id"`
	AssetID string       `json:"asset_id"`
	Period  string       `json:"period"`
	Items   []PayoutItem `json:"items"`
}

// Result of one provider call. TxHash is empty while Status is "submitted"
// in providers that only assign hashes at settlement.
type Result struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// Provider is the strategy boundary to the external custody service.
// Implementations must not be called while holding a ledger row lock; all
// calls carry an explicit timeout via ctx.
type Provider interface {
	MintToken(ctx context.Context, req MintRequest) (*Result, error)
	SubmitPayoutBatch(ctx context.Context, req PayoutBatchRequest) (*Result, error)
	TransferToken(ctx context.Context, tokenID, newOwnerID string) (*Result, error)
	CreateWallet(ctx context.Context, userID string) (*Result, error)
	Mode() string
}
