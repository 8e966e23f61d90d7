package payouts

import (
	"context"
	"errors"
	"math"
	"time"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/custody"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAssetNotFound  = errors.New("Asset not found")
	ErrInvalidAmount  = errors.New("Total amount must be greater than zero")
	ErrNoActiveTokens = errors.New("No active ownership tokens for this asset")
	ErrBatchNotFound  = errors.New("Payout batch not found")
	ErrNothingAccrued = errors.New("No accrued revenue to distribute")
)

// Distribution is one owner's outcome inside a batch.
type Distribution struct {
	PayoutID uuid.UUID `json:"payout_id"`
	TokenID  uuid.UUID `json:"token_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Amount   float64   `json:"amount"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// Result of one distribution run. DistributedTotal is the sum of completed
// shares; per-owner rounding residue is an accepted, bounded loss and is
// visible here rather than re-normalized away.
type Result struct {
	BatchID          uuid.UUID      `json:"payout_batch_id"`
	AssetID          uuid.UUID      `json:"asset_id"`
	ExternalTxHash   string         `json:"external_tx_hash"`
	Distributions    []Distribution `json:"distributions"`
	DistributedTotal float64        `json:"distributed_total"`
}

// Service distributes a gross amount across an asset's active ownership
// tokens proportionally to fraction owned.
type Service struct {
	DB      *gorm.DB
	Custody custody.Provider
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Distribute splits totalAmount across the asset's active tokens. Unsold
// fraction receives nothing and is not redistributed to existing owners.
// One owner's failed credit is recorded and skipped, not fatal to the rest
// of the batch. The custody submission happens before any wallet credit and
// holds no ledger lock; in live mode payouts stay pending until confirmed
// by webhook.
func (s *Service) Distribute(ctx context.Context, actorID *uuid.UUID, assetID uuid.UUID, totalAmount float64, period, description string) (*Result, error) {
	if totalAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	var asset domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}

	var tokens []domain.OwnershipToken
	if err := s.DB.WithContext(ctx).
		Where("asset_id = ? AND status = ?", assetID, domain.TokenStatusActive).
		Order("\"createdAt\" ASC").
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrNoActiveTokens
	}

	totalOwnership := 0.0
	for _, t := range tokens {
		totalOwnership += t.FractionOwned
	}

	batchID := uuid.New()
	items := make([]custody.PayoutItem, 0, len(tokens))
	shares := make([]float64, len(tokens))
	for i, t := range tokens {
		share := round2(t.FractionOwned / totalOwnership * totalAmount)
		shares[i] = share
		if share <= 0 {
			continue
		}
		items = append(items, custody.PayoutItem{
			TokenID: t.TokenID.String(),
			OwnerID: t.OwnerID.String(),
			Amount:  share,
		})
	}

	// Submit the batch first, with no DB lock held. Submission failure or
	// timeout leaves payouts pending with no hash; completion is only
	// asserted by an explicit confirmation event.
	txHash := ""
	settled := false
	result, err := s.Custody.SubmitPayoutBatch(ctx, custody.PayoutBatchRequest{
		BatchID: batchID.String(),
		AssetID: assetID.String(),
		Period:  period,
		Items:   items,
	})
	if err != nil {
		log.Warn().Err(err).Str("batch_id", batchID.String()).Msg("payout batch submission failed; payouts stay pending")
	} else {
		txHash = result.TxHash
		settled = result.Status == custody.StatusConfirmed
	}

	out := &Result{BatchID: batchID, AssetID: assetID, ExternalTxHash: txHash}
	for i, token := range tokens {
		share := shares[i]
		if share <= 0 {
			log.Info().Str("token_id", token.TokenID.String()).Msg("share rounds to zero; skipped")
			continue
		}
		dist := s.distributeOne(ctx, actorID, batchID, asset, token, share, period, description, txHash, settled)
		out.Distributions = append(out.Distributions, dist)
		if dist.Status == domain.PayoutStatusCompleted {
			out.DistributedTotal = round2(out.DistributedTotal + dist.Amount)
		}
	}
	return out, nil
}

// distributeOne records one owner's payout in its own transaction so a
// failure (missing wallet) does not roll back the rest of the batch.
func (s *Service) distributeOne(ctx context.Context, actorID *uuid.UUID, batchID uuid.UUID, asset domain.Asset, token domain.OwnershipToken, share float64, period, description, txHash string, settled bool) Distribution {
	dist := Distribution{
		TokenID: token.TokenID,
		OwnerID: token.OwnerID,
		Amount:  share,
		Status:  domain.PayoutStatusPending,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tokenID := token.TokenID
		payout := domain.Payout{
			BatchID:     batchID,
			AssetID:     asset.AssetID,
			OwnerID:     token.OwnerID,
			TokenID:     &tokenID,
			Amount:      share,
			Period:      period,
			Description: description,
			Status:      domain.PayoutStatusPending,
		}
		if txHash != "" {
			payout.ExternalTxHash = &txHash
		}

		if settled {
			w, err := wallet.FindByUser(tx, token.OwnerID)
			if err != nil {
				// Recorded as a failed payout so the partial outcome is
				// visible to the caller and the audit trail.
				reason := err.Error()
				payout.Status = domain.PayoutStatusFailed
				payout.FailureReason = &reason
				if err := tx.Create(&payout).Error; err != nil {
					return err
				}
				dist.PayoutID = payout.PayoutID
				dist.Status = payout.Status
				dist.Error = reason
				return audit.Record(tx, actorID, audit.ActionPayoutCreated, "payout", payout.PayoutID.String(), nil, &payout)
			}

			now := time.Now()
			payout.Status = domain.PayoutStatusCompleted
			payout.CompletedAt = &now
			if err := tx.Create(&payout).Error; err != nil {
				return err
			}
			if _, err := wallet.CreditInTransaction(tx, actorID, w.WalletID, share, "payout:"+payout.PayoutID.String(), map[string]interface{}{
				"batch_id": batchID.String(),
				"token_id": token.TokenID.String(),
				"period":   period,
			}); err != nil {
				return err
			}
			if err := creditTokenReturns(tx, token.TokenID, share); err != nil {
				return err
			}
		} else {
			if err := tx.Create(&payout).Error; err != nil {
				return err
			}
		}

		dist.PayoutID = payout.PayoutID
		dist.Status = payout.Status
		return audit.Record(tx, actorID, audit.ActionPayoutCreated, "payout", payout.PayoutID.String(), nil, &payout)
	})
	if err != nil {
		log.Warn().Err(err).Str("owner_id", token.OwnerID.String()).Str("batch_id", batchID.String()).
			Msg("distribution failed for owner; continuing batch")
		dist.Status = domain.PayoutStatusFailed
		dist.Error = err.Error()
	}
	return dist
}

// DistributeAccrued drains the asset's accrued investor revenue into a
// distribution. The drain is atomic under the asset row lock; nothing is
// drained when no active tokens exist.
func (s *Service) DistributeAccrued(ctx context.Context, actorID *uuid.UUID, assetID uuid.UUID, period string) (*Result, error) {
	var amount float64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset domain.Asset
		if err := database.ForUpdate(tx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrAssetNotFound
			}
			return err
		}
		if round2(asset.AccruedRevenue) <= 0 {
			return ErrNothingAccrued
		}
		var active int64
		if err := tx.Model(&domain.OwnershipToken{}).
			Where("asset_id = ? AND status = ?", assetID, domain.TokenStatusActive).
			Count(&active).Error; err != nil {
			return err
		}
		if active == 0 {
			return ErrNoActiveTokens
		}
		amount = round2(asset.AccruedRevenue)
		if err := tx.Model(&domain.Asset{}).Where("asset_id = ?", assetID).
			Update("accrued_revenue", 0).Error; err != nil {
			return err
		}
		// The drain commits before the payouts do; the audit row is the
		// durable trace of where the accrued amount went in between.
		return audit.Record(tx, actorID, audit.ActionRevenueDrained, "asset", assetID.String(),
			map[string]interface{}{"accrued_revenue": amount},
			map[string]interface{}{"accrued_revenue": 0.0, "drained_amount": amount})
	})
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = time.Now().Format("2006-01")
	}
	return s.Distribute(ctx, actorID, assetID, amount, period, "Scheduled distribution of accrued revenue")
}

// GetBatch returns all payouts of one batch.
func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Payout, error) {
	var rows []domain.Payout
	if err := s.DB.WithContext(ctx).Where("batch_id = ?", batchID).Order("\"createdAt\" ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrBatchNotFound
	}
	return rows, nil
}

// creditTokenReturns adds a completed share to the token's accumulated
// returns and current value.
func creditTokenReturns(tx *gorm.DB, tokenID uuid.UUID, share float64) error {
	return tx.Model(&domain.OwnershipToken{}).Where("token_id = ?", tokenID).
		Updates(map[string]interface{}{
			"total_returns": gorm.Expr("round(total_returns + ?, 2)", share),
			"current_value": gorm.Expr("round(current_value + ?, 2)", share),
		}).Error
}
