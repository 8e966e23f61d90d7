package revenue

import (
	"context"
	"errors"
	"time"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAssetNotFound  = errors.New("Asset not found")
	ErrInvalidAmount  = errors.New("Gross amount must be greater than zero")
	ErrAssetNotActive = errors.New("Asset is not active")
)

// Service converts gross-revenue occurrences into immutable RevenueEvents.
// Events are never recomputed or mutated; corrections are new compensating
// events.
type Service struct {
	DB    *gorm.DB
	Split SplitConfig
}

// RecordRide records one gross-revenue occurrence for an asset. The
// investor bucket accrues on the asset until the payout distributor drains
// it; the rider bucket is credited to the assigned driver's wallet when the
// asset has one. sourceEventID deduplicates queue redeliveries: a replay
// returns the already-stored event untouched.
func (s *Service) RecordRide(ctx context.Context, assetID uuid.UUID, gross float64, sourceType, sourceEventID string, occurredAt time.Time) (*domain.RevenueEvent, error) {
	if gross <= 0 {
		return nil, ErrInvalidAmount
	}
	if sourceType == "" {
		sourceType = domain.RevenueSourceRide
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	if sourceEventID != "" {
		var existing domain.RevenueEvent
		err := s.DB.WithContext(ctx).Where("source_event_id = ?", sourceEventID).First(&existing).Error
		if err == nil {
			log.Info().Str("source_event_id", sourceEventID).Msg("revenue event already recorded; replay ignored")
			return &existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	split := SplitRevenue(gross, s.Split)

	var event domain.RevenueEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset domain.Asset
		if err := tx.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrAssetNotFound
			}
			return err
		}
		if asset.Status != domain.AssetStatusActive {
			return ErrAssetNotActive
		}

		event = domain.RevenueEvent{
			AssetID:           assetID,
			SourceType:        sourceType,
			GrossAmount:       round2(gross),
			InvestorAmount:    split.Investor,
			RiderAmount:       split.Rider,
			ManagementAmount:  split.Management,
			MaintenanceAmount: split.Maintenance,
			SplitVersion:      s.Split.Version,
			OccurredAt:        occurredAt,
		}
		if sourceEventID != "" {
			event.SourceEventID = &sourceEventID
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.Asset{}).Where("asset_id = ?", assetID).
			Update("accrued_revenue", gorm.Expr("round(accrued_revenue + ?, 2)", split.Investor)).Error; err != nil {
			return err
		}

		// Rider bucket goes to the assigned driver, when there is one. A
		// missing driver wallet is logged, not fatal: the event itself
		// must still be recorded.
		if asset.AssignedDriverID != nil && split.Rider > 0 {
			w, err := wallet.FindByUser(tx, *asset.AssignedDriverID)
			if err != nil {
				log.Warn().Err(err).Str("driver_id", asset.AssignedDriverID.String()).
					Str("event_id", event.EventID.String()).
					Msg("driver wallet missing; rider share not credited")
			} else {
				ref := "revenue:" + event.EventID.String()
				if _, err := wallet.CreditInTransaction(tx, nil, w.WalletID, split.Rider, ref, map[string]interface{}{
					"asset_id": assetID.String(),
					"bucket":   "rider",
				}); err != nil {
					return err
				}
			}
		}

		return audit.Record(tx, nil, audit.ActionRevenueRecorded, "revenue_event", event.EventID.String(), nil, &event)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByAsset returns an asset's revenue events, newest first.
func (s *Service) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]domain.RevenueEvent, error) {
	var events []domain.RevenueEvent
	err := s.DB.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("occurred_at DESC").
		Find(&events).Error
	return events, err
}
