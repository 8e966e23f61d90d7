package ownership

import (
	"context"
	"errors"
	"math"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/custody"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// fractionEpsilon absorbs decimal rounding when checking the 100% bound.
const fractionEpsilon = 1e-6

// Service is the single entry point for ownership fraction mutations. The
// per-asset fraction aggregate is only ever written through it.
type Service struct {
	DB      *gorm.DB
	Custody custody.Provider
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Mint creates an ownership token for the owner if the asset still has the
// requested fraction unallocated. The check-then-insert runs under the
// asset's row lock so concurrent mints cannot jointly exceed 100%. The
// custody call happens after commit, with no lock held; in live mode the
// token stays pending until the provider confirms by webhook.
func (s *Service) Mint(ctx context.Context, actorID *uuid.UUID, assetID, ownerID uuid.UUID, fraction, investmentAmount float64) (*domain.OwnershipToken, error) {
	if fraction <= 0 || fraction > 100 {
		return nil, ErrInvalidFraction
	}
	if investmentAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	var token domain.OwnershipToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset domain.Asset
		if err := database.ForUpdate(tx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrAssetNotFound
			}
			return err
		}

		allocated, err := allocatedFraction(tx, assetID)
		if err != nil {
			return err
		}
		remaining := 100 - allocated
		if fraction > remaining+fractionEpsilon {
			return &InsufficientRemainingOwnershipError{Remaining: round2(remaining)}
		}

		token = domain.OwnershipToken{
			AssetID:          assetID,
			OwnerID:          ownerID,
			FractionOwned:    fraction,
			InvestmentAmount: round2(investmentAmount),
			CurrentValue:     round2(investmentAmount),
			Status:           domain.TokenStatusPending,
		}
		if err := tx.Create(&token).Error; err != nil {
			return err
		}

		if !asset.IsTokenized {
			if err := tx.Model(&domain.Asset{}).Where("asset_id = ?", assetID).
				Update("is_tokenized", true).Error; err != nil {
				return err
			}
		}

		return audit.Record(tx, actorID, audit.ActionTokenMinted, "ownership_token", token.TokenID.String(), nil, &token)
	})
	if err != nil {
		return nil, err
	}

	s.ensureOwnerWallet(ctx, ownerID)

	// Custody submission outside the transaction; the row lock is released.
	result, err := s.Custody.MintToken(ctx, custody.MintRequest{
		TokenID:          token.TokenID.String(),
		AssetID:          assetID.String(),
		OwnerID:          ownerID.String(),
		Fraction:         fraction,
		InvestmentAmount: investmentAmount,
	})
	if err != nil {
		log.Warn().Err(err).Str("token_id", token.TokenID.String()).Msg("custody mint submission failed; token stays pending")
		return &token, nil
	}
	if result.Status == custody.StatusConfirmed && result.TxHash != "" {
		confirmed, err := s.Confirm(ctx, token.TokenID, result.TxHash)
		if err != nil {
			log.Warn().Err(err).Str("token_id", token.TokenID.String()).Msg("mint confirmation failed; token stays pending")
			return &token, nil
		}
		return confirmed, nil
	}
	return &token, nil
}

// ensureOwnerWallet provisions a payout destination for a first-time owner:
// registered with custody first, then recorded locally. Failures are logged
// and do not fail the mint; the wallet.created webhook covers the gap.
func (s *Service) ensureOwnerWallet(ctx context.Context, ownerID uuid.UUID) {
	_, err := wallet.FindByUser(s.DB, ownerID)
	if err == nil {
		return
	}
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("owner wallet lookup failed")
		return
	}
	if _, err := s.Custody.CreateWallet(ctx, ownerID.String()); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("custody wallet registration failed; wallet stays unprovisioned")
		return
	}
	if _, err := wallet.EnsureWallet(s.DB, ownerID, "", ""); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("owner wallet creation failed")
	}
}

// Confirm applies an external confirmation to a token. Idempotent: the same
// hash again is a no-op; a different hash is a logged conflict, never an
// overwrite.
func (s *Service) Confirm(ctx context.Context, tokenID uuid.UUID, txHash string) (*domain.OwnershipToken, error) {
	var token domain.OwnershipToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_id = ?", tokenID).First(&token).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrTokenNotFound
			}
			return err
		}

		if token.ExternalTxHash != nil {
			if *token.ExternalTxHash == txHash {
				return nil // replayed confirmation
			}
			log.Warn().Str("token_id", tokenID.String()).
				Str("recorded_hash", *token.ExternalTxHash).
				Str("incoming_hash", txHash).
				Msg("token confirmation hash conflict")
			return ErrTxHashConflict
		}

		before := token
		token.ExternalTxHash = &txHash
		if token.Status == domain.TokenStatusPending {
			token.Status = domain.TokenStatusActive
		}
		if err := tx.Save(&token).Error; err != nil {
			return err
		}
		return audit.Record(tx, nil, audit.ActionTokenConfirmed, "ownership_token", token.TokenID.String(), &before, &token)
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TransferOwner reassigns the token to a new owner. The fraction does not
// change and no new token is created; applying the same transfer twice
// yields the same final owner.
func (s *Service) TransferOwner(ctx context.Context, actorID *uuid.UUID, tokenID, newOwnerID uuid.UUID) (*domain.OwnershipToken, error) {
	var token domain.OwnershipToken
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_id = ?", tokenID).First(&token).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrTokenNotFound
			}
			return err
		}
		if token.Status == domain.TokenStatusRevoked {
			return ErrTokenRevoked
		}
		if token.OwnerID == newOwnerID {
			return nil // already applied
		}
		before := token
		token.OwnerID = newOwnerID
		if err := tx.Save(&token).Error; err != nil {
			return err
		}
		changed = true
		return audit.Record(tx, actorID, audit.ActionTokenTransferred, "ownership_token", token.TokenID.String(), &before, &token)
	})
	if err != nil {
		return nil, err
	}

	// Custody is told after commit, with no lock held. The local record is
	// authoritative; the transfer.completed webhook re-applies the same
	// absolute reassignment, so a failed submission cannot diverge it.
	if changed {
		if result, err := s.Custody.TransferToken(ctx, tokenID.String(), newOwnerID.String()); err != nil {
			log.Warn().Err(err).Str("token_id", tokenID.String()).Msg("custody transfer submission failed")
		} else {
			log.Info().Str("token_id", tokenID.String()).Str("tx_hash", result.TxHash).Msg("custody transfer submitted")
		}
	}
	return &token, nil
}

// Revoke retires a token and returns its fraction to the asset's pool. The
// token row is kept with status "revoked"; calling it again is a no-op. The
// asset row lock keeps the freed fraction consistent with concurrent mints.
func (s *Service) Revoke(ctx context.Context, actorID *uuid.UUID, tokenID uuid.UUID, reason string) (*domain.OwnershipToken, error) {
	var token domain.OwnershipToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_id = ?", tokenID).First(&token).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrTokenNotFound
			}
			return err
		}
		if token.Status == domain.TokenStatusRevoked {
			return nil // already revoked
		}
		if err := database.ForUpdate(tx).Where("asset_id = ?", token.AssetID).First(&domain.Asset{}).Error; err != nil {
			return err
		}
		before := token
		token.Status = domain.TokenStatusRevoked
		if err := tx.Save(&token).Error; err != nil {
			return err
		}
		log.Info().Str("token_id", tokenID.String()).Str("reason", reason).Msg("ownership token revoked")
		return audit.Record(tx, actorID, audit.ActionTokenRevoked, "ownership_token", token.TokenID.String(), &before, map[string]interface{}{
			"status": token.Status,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ListByAsset returns all tokens of an asset plus the remaining unallocated
// fraction.
func (s *Service) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]domain.OwnershipToken, float64, error) {
	var asset domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, 0, ErrAssetNotFound
		}
		return nil, 0, err
	}
	var tokens []domain.OwnershipToken
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).Order("\"createdAt\" ASC").Find(&tokens).Error; err != nil {
		return nil, 0, err
	}
	allocated, err := allocatedFraction(s.DB.WithContext(ctx), assetID)
	if err != nil {
		return nil, 0, err
	}
	return tokens, round2(100 - allocated), nil
}

// allocatedFraction sums fraction_owned over pending+active tokens. Only
// revoked fractions return to the pool.
func allocatedFraction(tx *gorm.DB, assetID uuid.UUID) (float64, error) {
	var sum float64
	err := tx.Model(&domain.OwnershipToken{}).
		Where("asset_id = ? AND status IN ?", assetID, []string{domain.TokenStatusPending, domain.TokenStatusActive}).
		Select("COALESCE(SUM(fraction_owned), 0)").
		Scan(&sum).Error
	return sum, err
}
