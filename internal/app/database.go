package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/tinypos/config"
	"github.com/talkincode/tinypos/internal/snapshot"
)

// WorkingDBFilename is the live sqlite database under the data dir. The
// persisted snapshot is a serialized copy of this file.
const WorkingDBFilename = "tinypos.sqlite"

func (a *Application) workingDBPath() string {
	return filepath.Join(a.appConfig.GetDataDir(), WorkingDBFilename)
}

func gormLogger(debug bool) logger.Interface {
	if debug {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Silent)
}

func (a *Application) getDatabase(cfg config.DBConfig) *gorm.DB {
	switch cfg.Type {
	case "postgres":
		return getPgDatabase(cfg)
	default:
		path := a.workingDBPath()
		a.hydrateFromSnapshot(path)
		db, err := openSqlite(cfg, path)
		if err != nil {
			panic(err)
		}
		return db
	}
}

// hydrateFromSnapshot rebuilds a missing working database file from the last
// persisted snapshot, so a wiped data dir comes back with its state.
func (a *Application) hydrateFromSnapshot(path string) {
	if a.snap == nil {
		return
	}
	if _, err := os.Stat(path); err == nil {
		return
	}
	data, err := a.snap.Load()
	if err != nil {
		if !errors.Is(err, snapshot.ErrNoSnapshot) {
			zap.S().Errorf("load snapshot failed: %v", err)
		}
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		zap.S().Errorf("restore working database from snapshot failed: %v", err)
		return
	}
	zap.S().Infof("working database restored from snapshot, %d bytes", len(data))
}

func openSqlite(cfg config.DBConfig, path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger(cfg.Debug),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a single writer plus snapshot dumps; no use for a pool
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func getPgDatabase(cfg config.DBConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=Asia/Jakarta",
		cfg.Host, cfg.User, cfg.Passwd, cfg.Name, cfg.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger(cfg.Debug),
	})
	if err != nil {
		panic(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxIdleConns(cfg.IdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db
}
