package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/config"
	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/engine"
	"github.com/talkincode/tinypos/internal/offline"
	"github.com/talkincode/tinypos/internal/snapshot"
	"github.com/talkincode/tinypos/pkg/metrics"
)

type Application struct {
	appConfig     *config.AppConfig
	gormDB        *gorm.DB
	snap          *snapshot.Store
	posEngine     *engine.Engine
	registry      *offline.Registry
	offStore      *offline.Store
	bus           EventBus.Bus
	sched         *cron.Cron
	configManager *ConfigManager
}

// Ensure Application implements all interfaces
var (
	_ DBProvider            = (*Application)(nil)
	_ ConfigProvider        = (*Application)(nil)
	_ EngineProvider        = (*Application)(nil)
	_ OfflineProvider       = (*Application)(nil)
	_ SettingsProvider      = (*Application)(nil)
	_ SchedulerProvider     = (*Application)(nil)
	_ ConfigManagerProvider = (*Application)(nil)
	_ AppContext            = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle. The restore
// subscriber uses it to adopt the engine's reopened connection.
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Engine() *engine.Engine {
	return a.posEngine
}

func (a *Application) Offline() *offline.Registry {
	return a.registry
}

func (a *Application) Snapshot() *snapshot.Store {
	return a.snap
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Configure output paths
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.Logger.FileEnable {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, cfg.Logger.Filename)
	}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize metrics with workdir convention
	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}

	// The snapshot store opens before the working database so a missing
	// working file can be rebuilt from the last persisted snapshot.
	a.snap, err = snapshot.Open(filepath.Join(cfg.GetDataDir(), "snapshot.db"))
	if err != nil {
		zap.S().Errorf("open snapshot store failed: %v", err)
	}

	a.gormDB = a.getDatabase(cfg.Database)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	// Ensure database schema is migrated before loading configs
	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

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

	// wait for database initialization to complete
	go func() {
		time.Sleep(3 * time.Second)
		a.checkSuper()
		a.checkSettings()
		a.checkProducts()
	}()

	// Initialize the configuration manager
	a.configManager = NewConfigManager(a)

	a.initOffline(cfg)
	a.initJob()
}

// initOffline builds the caching layer that fronts the application shell
// origin. Registration of the configured version happens in BootOffline once
// the web server is up.
func (a *Application) initOffline(cfg *config.AppConfig) {
	store, err := offline.OpenStore(filepath.Join(cfg.GetDataDir(), "offline.db"))
	if err != nil {
		zap.S().Errorf("open offline store failed: %v", err)
		return
	}
	a.offStore = store
	a.registry = offline.NewRegistry(offline.RegistryConfig{
		Store:    store,
		Origin:   cfg.Offline.Origin,
		Manifest: offline.DefaultManifest,
	})
}

// BootOffline installs and activates the configured cache version. An
// install failure is logged and leaves any previous generation serving.
func (a *Application) BootOffline(ctx context.Context) {
	if a.registry == nil {
		return
	}
	if err := a.registry.Register(ctx, a.appConfig.Offline.Version); err != nil {
		zap.L().Warn("offline cache registration failed, serving without precache",
			zap.String("version", a.appConfig.Offline.Version), zap.Error(err))
		return
	}
	st := a.registry.Status()
	zap.L().Info("offline cache registered",
		zap.String("version", st.ActiveVersion),
		zap.Strings("generations", st.Generations))
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
	a.checkSuper()
	a.checkSettings()
	a.checkProducts()
}

// ConfigMgr returns the configuration manager
func (a *Application) ConfigMgr() *ConfigManager {
	return a.configManager
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	return a.configManager.GetString(category, key)
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return a.configManager.GetInt64(category, key)
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return a.configManager.GetBool(category, key)
}

// SaveSettings saves configuration settings
func (a *Application) SaveSettings(settings map[string]interface{}) error {
	return a.configManager.SaveSettings(settings)
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}

	if a.registry != nil {
		a.registry.Close()
	}
	if a.offStore != nil {
		_ = a.offStore.Close()
	}

	if a.snap != nil {
		_ = a.snap.Close()
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
