package webhooks

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Custody event types; a closed set with an explicit unknown branch so new
// provider events surface in review instead of falling through silently.
const (
	EventTokenMinted       = "token.minted"
	EventPayoutCompleted   = "payout.completed"
	EventPayoutFailed      = "payout.failed"
	EventTransferCompleted = "transfer.completed"
	EventWalletCreated     = "wallet.created"
	EventCustodyUpdated    = "custody.updated"
)

// Reconciler applies custody events to the ledger. Every handler is safe to
// run twice with the same payload; convergence does not depend on delivery
// order relative to the synchronous mint/distribute calls.
type Reconciler struct{}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Apply dispatches one event inside the caller's transaction and returns a
// short processing summary for the webhook log.
func (r *Reconciler) Apply(tx *gorm.DB, eventType string, data json.RawMessage) (string, error) {
	switch eventType {
	case EventTokenMinted:
		return r.applyTokenMinted(tx, data)
	case EventPayoutCompleted:
		return r.applyPayoutCompleted(tx, data)
	case EventPayoutFailed:
		return r.applyPayoutFailed(tx, data)
	case EventTransferCompleted:
		return r.applyTransferCompleted(tx, data)
	case EventWalletCreated:
		return r.applyWalletCreated(tx, data)
	case EventCustodyUpdated:
		return r.applyCustodyUpdated(tx, data)
	default:
		// Unrecognized-but-harmless: acknowledge so the provider does not
		// retry forever.
		log.Info().Str("event_type", eventType).Msg("unknown custody event acknowledged")
		return "ignored: unknown event type " + eventType, nil
	}
}

type tokenMintedEvent struct {
	TokenID          string  `json:"token_id"`
	AssetID          string  `json:"asset_id"`
	OwnerID          string  `json:"owner_id"`
	Fraction         float64 `json:"fraction"`
	InvestmentAmount float64 `json:"investment_amount"`
	TxHash           string  `json:"tx_hash"`
}

// applyTokenMinted finds-or-creates by token_id. An existing token is
// confirmed in place; a confirmation replay is a no-op and a hash mismatch
// is logged, never overwritten.
func (r *Reconciler) applyTokenMinted(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev tokenMintedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("token.minted: %w", err)
	}
	tokenID, err := uuid.Parse(ev.TokenID)
	if err != nil {
		return "", fmt.Errorf("token.minted: invalid token_id %q", ev.TokenID)
	}

	var token domain.OwnershipToken
	findErr := tx.Where("token_id = ?", tokenID).First(&token).Error
	if findErr == nil {
		if token.ExternalTxHash != nil {
			if *token.ExternalTxHash == ev.TxHash {
				return "token already confirmed; no-op", nil
			}
			log.Warn().Str("token_id", tokenID.String()).
				Str("recorded_hash", *token.ExternalTxHash).Str("incoming_hash", ev.TxHash).
				Msg("token.minted hash conflict; keeping recorded hash")
			return "hash conflict logged; recorded hash kept", nil
		}
		before := token
		token.ExternalTxHash = &ev.TxHash
		if token.Status == domain.TokenStatusPending {
			token.Status = domain.TokenStatusActive
		}
		if err := tx.Save(&token).Error; err != nil {
			return "", err
		}
		if err := audit.Record(tx, nil, audit.ActionTokenConfirmed, "ownership_token", token.TokenID.String(), &before, &token); err != nil {
			return "", err
		}
		return "token confirmed", nil
	}
	if findErr != gorm.ErrRecordNotFound {
		return "", findErr
	}

	// Webhook arrived before (or without) the synchronous mint: create the
	// token, still honoring the 100% bound under the asset row lock.
	assetID, err := uuid.Parse(ev.AssetID)
	if err != nil {
		return "", fmt.Errorf("token.minted: invalid asset_id %q", ev.AssetID)
	}
	ownerID, err := uuid.Parse(ev.OwnerID)
	if err != nil {
		return "", fmt.Errorf("token.minted: invalid owner_id %q", ev.OwnerID)
	}
	if ev.Fraction <= 0 || ev.Fraction > 100 {
		return "", fmt.Errorf("token.minted: invalid fraction %v", ev.Fraction)
	}

	var asset domain.Asset
	if err := database.ForUpdate(tx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		return "", fmt.Errorf("token.minted: asset %s: %w", assetID, err)
	}
	var allocated float64
	if err := tx.Model(&domain.OwnershipToken{}).
		Where("asset_id = ? AND status IN ?", assetID, []string{domain.TokenStatusPending, domain.TokenStatusActive}).
		Select("COALESCE(SUM(fraction_owned), 0)").Scan(&allocated).Error; err != nil {
		return "", err
	}
	if ev.Fraction > 100-allocated+1e-6 {
		return "", fmt.Errorf("token.minted: fraction %v exceeds remaining ownership %v", ev.Fraction, 100-allocated)
	}

	hash := ev.TxHash
	token = domain.OwnershipToken{
		TokenID:          tokenID,
		AssetID:          assetID,
		OwnerID:          ownerID,
		FractionOwned:    ev.Fraction,
		InvestmentAmount: round2(ev.InvestmentAmount),
		CurrentValue:     round2(ev.InvestmentAmount),
		Status:           domain.TokenStatusActive,
	}
	if hash != "" {
		token.ExternalTxHash = &hash
	}
	if err := tx.Create(&token).Error; err != nil {
		return "", err
	}
	if !asset.IsTokenized {
		if err := tx.Model(&domain.Asset{}).Where("asset_id = ?", assetID).Update("is_tokenized", true).Error; err != nil {
			return "", err
		}
	}
	if err := audit.Record(tx, nil, audit.ActionTokenMinted, "ownership_token", token.TokenID.String(), nil, &token); err != nil {
		return "", err
	}
	return "token created from webhook", nil
}

type payoutDistributionEvent struct {
	TokenID string  `json:"token_id"`
	OwnerID string  `json:"owner_id"`
	Amount  float64 `json:"amount"`
}

type payoutCompletedEvent struct {
	BatchID       string                    `json:"batch_id"`
	AssetID       string                    `json:"asset_id"`
	Period        string                    `json:"period"`
	TxHash        string                    `json:"tx_hash"`
	Distributions []payoutDistributionEvent `json:"distributions"`
}

// applyPayoutCompleted finds-or-creates each distribution by
// (token_id, tx_hash) and only credits the wallet and token returns the
// first time that pair is seen.
func (r *Reconciler) applyPayoutCompleted(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev payoutCompletedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("payout.completed: %w", err)
	}
	if ev.TxHash == "" {
		return "", fmt.Errorf("payout.completed: missing tx_hash")
	}
	batchID, err := uuid.Parse(ev.BatchID)
	if err != nil {
		return "", fmt.Errorf("payout.completed: invalid batch_id %q", ev.BatchID)
	}

	applied, skipped := 0, 0
	for _, d := range ev.Distributions {
		tokenID, err := uuid.Parse(d.TokenID)
		if err != nil {
			return "", fmt.Errorf("payout.completed: invalid token_id %q", d.TokenID)
		}

		var payout domain.Payout
		findErr := tx.Where("token_id = ? AND external_tx_hash = ?", tokenID, ev.TxHash).First(&payout).Error
		switch {
		case findErr == nil && payout.Status == domain.PayoutStatusCompleted:
			skipped++ // (token_id, tx_hash) already applied
			continue
		case findErr == nil:
			if err := r.settlePayout(tx, &payout, d.Amount); err != nil {
				return "", err
			}
			applied++
		case findErr == gorm.ErrRecordNotFound:
			ownerID, err := uuid.Parse(d.OwnerID)
			if err != nil {
				return "", fmt.Errorf("payout.completed: invalid owner_id %q", d.OwnerID)
			}
			hash := ev.TxHash
			payout = domain.Payout{
				BatchID:        batchID,
				OwnerID:        ownerID,
				TokenID:        &tokenID,
				Amount:         round2(d.Amount),
				Period:         ev.Period,
				Description:    "Created from custody confirmation",
				Status:         domain.PayoutStatusPending,
				ExternalTxHash: &hash,
			}
			if assetID, err := uuid.Parse(ev.AssetID); err == nil {
				payout.AssetID = assetID
			}
			if err := tx.Create(&payout).Error; err != nil {
				return "", err
			}
			if err := r.settlePayout(tx, &payout, d.Amount); err != nil {
				return "", err
			}
			applied++
		default:
			return "", findErr
		}
	}
	return fmt.Sprintf("payout batch settled: %d applied, %d replayed", applied, skipped), nil
}

// settlePayout marks a pending payout completed, credits the owner's wallet
// and increments the token's returns. The wallet is created when missing so
// a confirmation arriving before onboarding completes is not lost.
func (r *Reconciler) settlePayout(tx *gorm.DB, payout *domain.Payout, amount float64) error {
	amount = round2(amount)
	if amount <= 0 {
		amount = payout.Amount
	}

	now := time.Now()
	before := *payout
	payout.Status = domain.PayoutStatusCompleted
	payout.CompletedAt = &now
	if err := tx.Save(payout).Error; err != nil {
		return err
	}

	w, err := wallet.EnsureWallet(tx, payout.OwnerID, "", "")
	if err != nil {
		return err
	}
	if _, err := wallet.CreditInTransaction(tx, nil, w.WalletID, amount, "payout:"+payout.PayoutID.String(), map[string]interface{}{
		"batch_id": payout.BatchID.String(),
		"tx_hash":  deref(payout.ExternalTxHash),
	}); err != nil {
		return err
	}
	if payout.TokenID != nil {
		if err := tx.Model(&domain.OwnershipToken{}).Where("token_id = ?", *payout.TokenID).
			Updates(map[string]interface{}{
				"total_returns": gorm.Expr("round(total_returns + ?, 2)", amount),
				"current_value": gorm.Expr("round(current_value + ?, 2)", amount),
			}).Error; err != nil {
			return err
		}
	}
	return audit.Record(tx, nil, audit.ActionPayoutSettled, "payout", payout.PayoutID.String(), &before, payout)
}

type payoutFailedEvent struct {
	BatchID string `json:"batch_id"`
	TxHash  string `json:"tx_hash"`
	Reason  string `json:"reason"`
}

// applyPayoutFailed marks the batch's pending payouts failed. Completed
// payouts are left untouched; a replay is a no-op.
func (r *Reconciler) applyPayoutFailed(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev payoutFailedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("payout.failed: %w", err)
	}
	batchID, err := uuid.Parse(ev.BatchID)
	if err != nil {
		return "", fmt.Errorf("payout.failed: invalid batch_id %q", ev.BatchID)
	}
	reason := ev.Reason
	if reason == "" {
		reason = "custody reported failure"
	}

	res := tx.Model(&domain.Payout{}).
		Where("batch_id = ? AND status = ?", batchID, domain.PayoutStatusPending).
		Updates(map[string]interface{}{"status": domain.PayoutStatusFailed, "failure_reason": reason})
	if res.Error != nil {
		return "", res.Error
	}
	return fmt.Sprintf("payout batch failed: %d payouts marked", res.RowsAffected), nil
}

type transferCompletedEvent struct {
	TokenID    string `json:"token_id"`
	NewOwnerID string `json:"new_owner_id"`
	TxHash     string `json:"tx_hash"`
}

// applyTransferCompleted reassigns the token to the new owner as an
// absolute state, idempotent by construction.
func (r *Reconciler) applyTransferCompleted(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev transferCompletedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("transfer.completed: %w", err)
	}
	tokenID, err := uuid.Parse(ev.TokenID)
	if err != nil {
		return "", fmt.Errorf("transfer.completed: invalid token_id %q", ev.TokenID)
	}
	newOwnerID, err := uuid.Parse(ev.NewOwnerID)
	if err != nil {
		return "", fmt.Errorf("transfer.completed: invalid new_owner_id %q", ev.NewOwnerID)
	}

	var token domain.OwnershipToken
	if err := tx.Where("token_id = ?", tokenID).First(&token).Error; err != nil {
		return "", fmt.Errorf("transfer.completed: token %s: %w", tokenID, err)
	}
	if token.OwnerID == newOwnerID {
		return "transfer already applied; no-op", nil
	}
	before := token
	token.OwnerID = newOwnerID
	if err := tx.Save(&token).Error; err != nil {
		return "", err
	}
	if err := audit.Record(tx, nil, audit.ActionTokenTransferred, "ownership_token", token.TokenID.String(), &before, &token); err != nil {
		return "", err
	}
	return "transfer applied", nil
}

type walletCreatedEvent struct {
	UserID   string `json:"user_id"`
	Address  string `json:"address"`
	Currency string `json:"currency"`
}

func (r *Reconciler) applyWalletCreated(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev walletCreatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("wallet.created: %w", err)
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		return "", fmt.Errorf("wallet.created: invalid user_id %q", ev.UserID)
	}
	if _, err := wallet.EnsureWallet(tx, userID, ev.Address, ev.Currency); err != nil {
		return "", err
	}
	return "wallet ensured", nil
}

type custodyUpdatedEvent struct {
	AssetID      string  `json:"asset_id"`
	CurrentValue float64 `json:"current_value"`
}

// applyCustodyUpdated applies an absolute asset revaluation.
func (r *Reconciler) applyCustodyUpdated(tx *gorm.DB, data json.RawMessage) (string, error) {
	var ev custodyUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("custody.updated: %w", err)
	}
	assetID, err := uuid.Parse(ev.AssetID)
	if err != nil {
		return "", fmt.Errorf("custody.updated: invalid asset_id %q", ev.AssetID)
	}
	if ev.CurrentValue <= 0 {
		return "", fmt.Errorf("custody.updated: invalid current_value %v", ev.CurrentValue)
	}

	var asset domain.Asset
	if err := tx.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		return "", fmt.Errorf("custody.updated: asset %s: %w", assetID, err)
	}
	if round2(asset.CurrentValue) == round2(ev.CurrentValue) {
		return "valuation unchanged; no-op", nil
	}
	before := asset
	asset.CurrentValue = round2(ev.CurrentValue)
	if err := tx.Save(&asset).Error; err != nil {
		return "", err
	}
	if err := audit.Record(tx, nil, audit.ActionAssetRevalued, "asset", asset.AssetID.String(), &before, &asset); err != nil {
		return "", err
	}
	return "asset revalued", nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
