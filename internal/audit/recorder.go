package audit

import (
	"encoding/json"

	"fleetfi-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions.
const (
	ActionTokenMinted      = "token.minted"
	ActionTokenConfirmed   = "token.confirmed"
	ActionTokenTransferred = "token.transferred"
	ActionTokenRevoked     = "token.revoked"
	ActionRevenueRecorded  = "revenue.recorded"
	ActionPayoutCreated    = "payout.created"
	ActionPayoutSettled    = "payout.settled"
	ActionWalletCredited   = "wallet.credited"
	ActionWalletDebited    = "wallet.debited"
	ActionWalletCreated    = "wallet.created"
	ActionAssetRegistered  = "asset.registered"
	ActionRevenueDrained   = "asset.revenue_drained"
	ActionAssetRevalued    = "asset.revalued"
	ActionAssetAssigned    = "asset.driver_assigned"
)

// Record writes one immutable audit row inside the caller's transaction and
// mirrors it to the log. Before/after may be nil; marshal failures are
// swallowed into null JSON rather than failing the business operation.
func Record(tx *gorm.DB, actorID *uuid.UUID, action, entityType, entityID string, before, after interface{}) error {
	row := domain.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     marshal(before),
		After:      marshal(after),
	}
	if err := tx.Create(&row).Error; err != nil {
		return err
	}
	ev := log.Info().Str("action", action).Str("entity_type", entityType).Str("entity_id", entityID)
	if actorID != nil {
		ev = ev.Str("actor_id", actorID.String())
	}
	ev.Msg("audit")
	return nil
}

func marshal(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
