package order

import (
	"database/sql"

	"roofline/internal/clock"
	"roofline/internal/config"
	"roofline/internal/infrastructure/metrics"
	ledgersvc "roofline/internal/ledger/service"
	"roofline/internal/lock"
	"roofline/internal/order/controller"
	orderrepo "roofline/internal/order/repository"
	"roofline/internal/order/service"
	"roofline/internal/provider/eagleview"
	"roofline/internal/provider/solar"
	"roofline/internal/store/memory"

	"go.uber.org/zap"
)

type Dependencies struct {
	DB        *sql.DB
	Ledger    *ledgersvc.CostLedger
	Cache     service.ResultCache
	Publisher service.EventPublisher
	Locker    lock.Locker
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

type Module struct {
	Controller      *controller.OrderController
	Orchestrator    *service.OrderOrchestrator
	Poller          *service.StatusPoller
	Sweeper         *service.Sweeper
	Tier1Configured bool
}

func NewModule(deps Dependencies, cfg *config.Config, logger *zap.Logger) *Module {
	var (
		orders    service.OrderRepository
		estimates service.EstimateRepository
	)
	if deps.DB != nil {
		orders = orderrepo.NewMySQLOrderRepository(deps.DB)
		estimates = orderrepo.NewMySQLEstimateRepository(deps.DB)
	} else {
		orders = memory.NewOrderStore()
		estimates = memory.NewEstimateStore()
	}

	solarClient := solar.NewClient(solar.Config{
		APIKey:       cfg.Google.APIKey,
		GeocodingURL: cfg.Google.GeocodingURL,
		SolarURL:     cfg.Google.SolarURL,
		Timeout:      cfg.Google.Timeout,
	}, deps.Ledger, deps.Clock, logger)

	var provider service.ReportProvider
	if cfg.EagleView.LiveMode {
		provider = eagleview.NewClient(eagleview.Config{
			ClientID:     cfg.EagleView.ClientID,
			ClientSecret: cfg.EagleView.ClientSecret,
			BaseURL:      cfg.EagleView.BaseURL,
			AuthURL:      cfg.EagleView.AuthURL,
			Timeout:      cfg.EagleView.Timeout,
		}, deps.Ledger, deps.Clock, logger)
	} else {
		provider = eagleview.NewSimulator(cfg.EagleView.SimulatedTurnaround, deps.Ledger, deps.Clock, logger)
	}

	orchestrator := service.NewOrderOrchestrator(
		orders,
		estimates,
		deps.Ledger,
		solarClient,
		provider,
		deps.Cache,
		deps.Publisher,
		deps.Locker,
		deps.Clock,
		deps.Metrics,
		logger,
		service.OrchestratorOptions{
			SubmitLockTTL:   cfg.Order.SubmitLockTTL,
			SubmitLockWait:  cfg.Order.SubmitLockWait,
			EstimateTimeout: 2 * cfg.Google.Timeout,
		},
	)

	poller := service.NewStatusPoller(
		orders,
		provider,
		deps.Publisher,
		deps.Locker,
		deps.Clock,
		deps.Metrics,
		logger,
		service.PollerOptions{
			Timeout:          cfg.Poller.Timeout,
			CheckWaitTimeout: cfg.Poller.CheckWaitTimeout,
			MinRecheck:       cfg.Poller.MinRecheck,
			OrderMaxAge:      cfg.Poller.OrderMaxAge,
		},
	)

	sweeper := service.NewSweeper(orders, poller, deps.Clock, deps.Metrics, logger, service.SweeperConfig{
		Interval:     cfg.Poller.Interval,
		BatchSize:    cfg.Poller.BatchSize,
		Concurrency:  cfg.Poller.Concurrency,
		OrderTimeout: cfg.Poller.Timeout,
	})

	return &Module{
		Controller:      controller.NewOrderController(orchestrator, poller, logger),
		Orchestrator:    orchestrator,
		Poller:          poller,
		Sweeper:         sweeper,
		Tier1Configured: solarClient.Configured(),
	}
}
