package custody

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SandboxProvider settles every operation synchronously with generated tx
// hashes and no network calls. The ledger logic is identical to live mode;
// only this boundary differs.
type SandboxProvider struct{}

func (p *SandboxProvider) Mode() string { return "sandbox" }

func (p *SandboxProvider) MintToken(ctx context.Context, req MintRequest) (*Result, error) {
	hash := sandboxHash("MINT")
	log.Info().Str("token_id", req.TokenID).Str("tx_hash", hash).Msg("sandbox custody: mint settled")
	return &Result{TxHash: hash, Status: StatusConfirmed}, nil
}

func (p *SandboxProvider) SubmitPayoutBatch(ctx context.Context, req PayoutBatchRequest) (*Result, error) {
	hash := sandboxHash("PAYOUT")
	log.Info().Str("batch_id", req.BatchID).Int("items", len(req.Items)).Str("tx_hash", hash).Msg("sandbox custody: payout batch settled")
	return &Result{TxHash: hash, Status: StatusConfirmed}, nil
}

func (p *SandboxProvider) TransferToken(ctx context.Context, tokenID, newOwnerID string) (*Result, error) {
	hash := sandboxHash("TRANSFER")
	log.Info().Str("token_id", tokenID).Str("new_owner_id", newOwnerID).Str("tx_hash", hash).Msg("sandbox custody: transfer settled")
	return &Result{TxHash: hash, Status: StatusConfirmed}, nil
}

func (p *SandboxProvider) CreateWallet(ctx context.Context, userID string) (*Result, error) {
	hash := sandboxHash("WALLET")
	log.Info().Str("user_id", userID).Str("tx_hash", hash).Msg("sandbox custody: wallet created")
	return &Result{TxHash: hash, Status: StatusConfirmed}, nil
}

func sandboxHash(prefix string) string {
	return fmt.Sprintf("SANDBOX-%s-%s", prefix, uuid.New().String())
}
