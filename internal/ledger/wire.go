package ledger

import (
	"database/sql"

	"roofline/internal/clock"
	"roofline/internal/config"
	"roofline/internal/infrastructure/metrics"
	ledgerrepo "roofline/internal/ledger/repository"
	"roofline/internal/ledger/service"
	"roofline/internal/store/memory"

	"go.uber.org/zap"
)

// NewModule builds the cost ledger on MySQL, or on in-memory stores when db
// is nil.
func NewModule(db *sql.DB, cfg *config.Config, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *service.CostLedger {
	var (
		usage    service.UsageRepository
		counters service.CounterRepository
	)
	if db != nil {
		usage = ledgerrepo.NewMySQLUsageRepository(db)
		counters = ledgerrepo.NewMySQLCounterRepository(db)
	} else {
		usage = memory.NewUsageLog()
		counters = memory.NewDailyCounter()
	}

	return service.NewCostLedger(usage, counters, clk, m, logger, service.Options{
		DailyLimit:       cfg.EagleView.DailyOrderLimit,
		LiveMode:         cfg.EagleView.LiveMode,
		Location:         cfg.Billing.Location,
		MaxRetryAttempts: cfg.Order.MaxRetryAttempts,
		TxTimeout:        cfg.Order.ReservationTxTimeout,
	})
}
