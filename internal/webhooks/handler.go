package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fleetfi-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	signatureHeader = "X-Custody-Signature"
	webhookSource   = "custody"
	replayKeyPrefix = "webhook:seen:"
	replayKeyTTL    = 10 * time.Minute
)

// WebhookHandler receives asynchronous confirmation events from the custody
// provider. Mounted before any body-consuming middleware so the raw body is
// available for signature verification.
type WebhookHandler struct {
	DB         *gorm.DB
	Rdb        *redis.Client
	Secret     string
	SkipVerify bool // explicit sandbox switch; logged on every bypassed request
	Reconciler *Reconciler
}

type eventEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// HandleWebhook handles POST /api/v1/custody/webhook: raw body, HMAC verification,
// log lifecycle, idempotent dispatch. Senders get transport-level status
// codes only, never business detail.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	if len(rawBody) == 0 {
		log.Warn().Msg("custody webhook received empty body")
		return c.Status(400).JSON(fiber.Map{"received": false})
	}

	if wh.SkipVerify {
		log.Warn().Msg("custody webhook signature verification bypassed (sandbox mode)")
	} else if err := VerifySignature(rawBody, c.Get(signatureHeader), wh.Secret); err != nil {
		log.Warn().Err(err).Bool("has_sig", c.Get(signatureHeader) != "").Msg("custody webhook signature verification failed")
		return c.Status(401).JSON(fiber.Map{"received": false})
	}

	var event eventEnvelope
	if err := json.Unmarshal(rawBody, &event); err != nil || event.EventType == "" {
		log.Warn().Err(err).Msg("custody webhook JSON parse failed")
		return c.Status(400).JSON(fiber.Map{"received": false})
	}

	// Concurrency guard against simultaneous identical deliveries; the DB
	// idempotency keys remain the source of truth once the TTL expires.
	if wh.Rdb != nil {
		sum := sha256.Sum256(rawBody)
		ok, err := wh.Rdb.SetNX(context.Background(), replayKeyPrefix+hex.EncodeToString(sum[:]), 1, replayKeyTTL).Result()
		if err == nil && !ok {
			log.Info().Str("event_type", event.EventType).Msg("duplicate custody delivery; acknowledged without processing")
			return c.Status(200).JSON(fiber.Map{"received": true, "duplicate": true})
		}
	}

	wlog := domain.WebhookLog{
		Source:    webhookSource,
		EventType: event.EventType,
		Payload:   datatypes.JSON(rawBody),
		Status:    domain.WebhookStatusProcessing,
	}
	if err := wh.DB.Create(&wlog).Error; err != nil {
		log.Error().Err(err).Msg("custody webhook: log create failed")
		return c.Status(500).JSON(fiber.Map{"received": false})
	}

	// All side effects of one delivery commit together or not at all.
	var summary string
	err := wh.DB.Transaction(func(tx *gorm.DB) error {
		var applyErr error
		summary, applyErr = wh.Reconciler.Apply(tx, event.EventType, event.Data)
		return applyErr
	})
	if err != nil {
		msg := err.Error()
		wh.DB.Model(&domain.WebhookLog{}).Where("log_id = ?", wlog.LogID).
			Updates(map[string]interface{}{"status": domain.WebhookStatusFailed, "error": msg})
		log.Error().Err(err).Str("event_type", event.EventType).Str("log_id", wlog.LogID.String()).Msg("custody webhook processing failed")
		return c.Status(500).JSON(fiber.Map{"received": false})
	}

	wh.DB.Model(&domain.WebhookLog{}).Where("log_id = ?", wlog.LogID).
		Updates(map[string]interface{}{"status": domain.WebhookStatusProcessed, "response": summary})
	return c.Status(200).JSON(fiber.Map{"received": true, "result": summary})
}

// VerifySignature checks the hex HMAC-SHA256 of the raw payload against the
// signature header using a constant-time comparison.
func VerifySignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}
	sig := strings.TrimPrefix(strings.TrimSpace(sigHeader), "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return errors.New("signature mismatch")
	}
	return nil
}
