package scheduler

import (
	"context"
	"sync"
	"time"

	"fleetfi-backend/internal/config"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/payouts"

	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Manager runs the scheduled distribution of accrued revenue. One singleton
// cron job scans assets with a positive investor accrual and fans their
// distributions out over a bounded worker pool.
type Manager struct {
	scheduler gocron.Scheduler
	db        *gorm.DB
	payouts   *payouts.Service
	cfg       config.Config
}

func NewManager(db *gorm.DB, payoutService *payouts.Service, cfg config.Config) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{
		scheduler: s,
		db:        db,
		payouts:   payoutService,
		cfg:       cfg,
	}, nil
}

// Start registers the distribution job and starts the scheduler.
func (m *Manager) Start() error {
	_, err := m.scheduler.NewJob(
		gocron.CronJob(m.cfg.DistributionCron, false),
		gocron.NewTask(m.RunDistribution),
		gocron.WithName("revenue-distribution"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	m.scheduler.Start()
	log.Info().Str("cron", m.cfg.DistributionCron).Msg("distribution scheduler started")
	return nil
}

// RunDistribution drains every asset with accrued investor revenue. Each
// asset runs on its own worker; one asset failing does not stop the rest.
// Callable directly so the sweep can be driven without the scheduler.
func (m *Manager) RunDistribution() {
	ctx := context.Background()
	period := time.Now().Format("2006-01")

	var assets []domain.Asset
	if err := m.db.
		Where("accrued_revenue > 0 AND status = ?", domain.AssetStatusActive).
		Find(&assets).Error; err != nil {
		log.Error().Err(err).Msg("distribution sweep: failed to load assets")
		return
	}
	if len(assets) == 0 {
		log.Info().Str("period", period).Msg("distribution sweep: nothing accrued")
		return
	}

	workers := m.cfg.DistributionWorkers
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		log.Error().Err(err).Msg("distribution sweep: failed to create worker pool")
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, asset := range assets {
		asset := asset
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			result, err := m.payouts.DistributeAccrued(ctx, nil, asset.AssetID, period)
			if err != nil {
				log.Error().Err(err).Str("asset_id", asset.AssetID.String()).
					Msg("distribution sweep: asset failed")
				return
			}
			log.Info().Str("asset_id", asset.AssetID.String()).
				Str("batch_id", result.BatchID.String()).
				Float64("distributed", result.DistributedTotal).
				Int("payouts", len(result.Distributions)).
				Msg("distribution sweep: asset settled")
		})
		if submitErr != nil {
			wg.Done()
			log.Error().Err(submitErr).Str("asset_id", asset.AssetID.String()).
				Msg("distribution sweep: failed to submit asset")
		}
	}
	wg.Wait()
	log.Info().Str("period", period).Int("assets", len(assets)).Msg("distribution sweep finished")
}

// Stop shuts the scheduler down.
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("failed to shut down distribution scheduler")
	}
}
