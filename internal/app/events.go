package app

import (
	"go.uber.org/zap"

	"github.com/talkincode/tinypos/internal/engine"
	"github.com/talkincode/tinypos/pkg/metrics"
)

// subscribeEngineEvents attaches the application-level listeners to the
// engine event bus. Mutation topics feed the metrics counters; the restore
// topic additionally swaps the shared gorm handle, since Restore closes the
// old connection and reopens a new one inside the engine.
func (a *Application) subscribeEngineEvents() {
	_ = a.bus.Subscribe(engine.EvtProductUpdated, func(args ...interface{}) {
		metrics.IncrCounter("pos_product_updates")
	})
	_ = a.bus.Subscribe(engine.EvtStockChanged, func(args ...interface{}) {
		metrics.IncrCounter("pos_stock_changes")
	})
	_ = a.bus.Subscribe(engine.EvtTransactionCreated, func(args ...interface{}) {
		metrics.IncrCounter("pos_transactions")
	})
	_ = a.bus.Subscribe(engine.EvtUserChanged, func(args ...interface{}) {
		metrics.IncrCounter("pos_user_changes")
	})
	_ = a.bus.Subscribe(engine.EvtDbRestored, func(args ...interface{}) {
		metrics.IncrCounter("pos_db_restores")
		a.OverrideDB(a.posEngine.DB())
		zap.L().Info("application database handle refreshed after restore")
	})
}
