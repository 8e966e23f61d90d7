package assets

import (
	"context"
	"errors"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAssetNotFound  = errors.New("Asset not found")
	ErrInvalidValue   = errors.New("Asset value must be greater than zero")
	ErrInvalidType    = errors.New("Invalid asset type")
	ErrNameRequired   = errors.New("Asset name is required")
	ErrDriverNotFound = errors.New("Assigned driver not found")
)

// Service manages the fleet asset registry.
type Service struct {
	DB *gorm.DB
}

type RegisterInput struct {
	Name             string
	AssetType        string
	OriginalValue    float64
	AssignedDriverID *uuid.UUID
}

func validType(t string) bool {
	switch t {
	case domain.AssetTypeVehicle, domain.AssetTypeBattery, domain.AssetTypeChargingCabinet:
		return true
	}
	return false
}

// Register adds a fleet unit to the registry. Current value starts at the
// original value; revaluations come later from custody updates.
func (s *Service) Register(ctx context.Context, actorID *uuid.UUID, in RegisterInput) (*domain.Asset, error) {
	if in.Name == "" {
		return nil, ErrNameRequired
	}
	if !validType(in.AssetType) {
		return nil, ErrInvalidType
	}
	if in.OriginalValue <= 0 {
		return nil, ErrInvalidValue
	}

	var asset domain.Asset
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.AssignedDriverID != nil {
			var driver domain.User
			if err := tx.Where("user_id = ?", *in.AssignedDriverID).First(&driver).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return ErrDriverNotFound
				}
				return err
			}
		}
		asset = domain.Asset{
			Name:             in.Name,
			AssetType:        in.AssetType,
			OriginalValue:    in.OriginalValue,
			CurrentValue:     in.OriginalValue,
			AssignedDriverID: in.AssignedDriverID,
			Status:           domain.AssetStatusActive,
		}
		if err := tx.Create(&asset).Error; err != nil {
			return err
		}
		return audit.Record(tx, actorID, audit.ActionAssetRegistered, "asset", asset.AssetID.String(), nil, &asset)
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// Get returns one asset by id.
func (s *Service) Get(ctx context.Context, assetID uuid.UUID) (*domain.Asset, error) {
	var asset domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

// List returns all assets, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := s.DB.WithContext(ctx).Order("\"createdAt\" DESC").Find(&assets).Error
	return assets, err
}

// AssignDriver sets or clears the asset's assigned driver.
func (s *Service) AssignDriver(ctx context.Context, actorID *uuid.UUID, assetID uuid.UUID, driverID *uuid.UUID) (*domain.Asset, error) {
	var asset domain.Asset
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrAssetNotFound
			}
			return err
		}
		if driverID != nil {
			var driver domain.User
			if err := tx.Where("user_id = ?", *driverID).First(&driver).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return ErrDriverNotFound
				}
				return err
			}
		}
		before := asset
		asset.AssignedDriverID = driverID
		if err := tx.Save(&asset).Error; err != nil {
			return err
		}
		return audit.Record(tx, actorID, audit.ActionAssetAssigned, "asset", asset.AssetID.String(), &before, &asset)
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}
