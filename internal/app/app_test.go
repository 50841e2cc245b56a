package app

import (
	"path/filepath"
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/config"
	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/engine"
	"github.com/talkincode/tinypos/internal/snapshot"
	"github.com/talkincode/tinypos/pkg/metrics"
)

// newTestApplication wires the database, snapshot store, engine and event
// subscribers the same way Init does, without the logger and web pieces.
func newTestApplication(t *testing.T) *Application {
	t.Helper()
	cfg := *config.DefaultAppConfig
	cfg.System.Workdir = t.TempDir()
	require.NoError(t, cfg.InitDirs())

	a := NewApplication(&cfg)
	var err error
	a.snap, err = snapshot.Open(filepath.Join(cfg.GetDataDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.snap.Close() })

	a.gormDB, err = openSqlite(cfg.Database, a.workingDBPath())
	require.NoError(t, err)
	require.NoError(t, a.gormDB.AutoMigrate(domain.Tables...))

	a.bus = EventBus.New()
	a.posEngine = engine.New(engine.Config{
		DB:       a.gormDB,
		Snapshot: a.snap,
		Bus:      a.bus,
		DBType:   cfg.Database.Type,
		DBPath:   a.workingDBPath(),
		Reopen: func() (*gorm.DB, error) {
			return openSqlite(cfg.Database, a.workingDBPath())
		},
	})
	a.subscribeEngineEvents()
	a.configManager = NewConfigManager(a)
	return a
}

func TestRestoreRefreshesAppHandle(t *testing.T) {
	a := newTestApplication(t)
	e := a.Engine()

	require.NoError(t, e.UpsertProduct(&domain.Product{
		Code: "8901234567890", Name: "Drink A", Price: 5000, Stock: 100, Category: "Drinks",
	}))

	dump, err := e.ExportSnapshot()
	require.NoError(t, err)
	require.NoError(t, e.Restore(dump))

	// the shared handle must follow the engine onto the reopened connection
	assert.Same(t, e.DB(), a.DB())

	var count int64
	require.NoError(t, a.DB().Model(&domain.Product{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMutationEventsFeedCounters(t *testing.T) {
	a := newTestApplication(t)

	before := metrics.CounterValue("pos_product_updates")
	restores := metrics.CounterValue("pos_db_restores")

	require.NoError(t, a.Engine().UpsertProduct(&domain.Product{
		Code: "8901234567897", Name: "Bath Soap", Price: 12000, Stock: 50, Category: "Health",
	}))
	assert.Equal(t, before+1, metrics.CounterValue("pos_product_updates"))

	dump, err := a.Engine().ExportSnapshot()
	require.NoError(t, err)
	require.NoError(t, a.Engine().Restore(dump))
	assert.Equal(t, restores+1, metrics.CounterValue("pos_db_restores"))
}
