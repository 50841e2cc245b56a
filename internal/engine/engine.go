// Package engine implements the catalog and ledger engine: product, user,
// transaction and audit-log operations over the embedded working database,
// with a full snapshot rewrite after every mutation.
package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/snapshot"
)

// Domain event topics published after successful mutations.
const (
	EvtProductUpdated     = "pos.product.updated"
	EvtStockChanged       = "pos.stock.changed"
	EvtTransactionCreated = "pos.transaction.created"
	EvtUserChanged        = "pos.user.changed"
	EvtDbRestored         = "pos.db.restored"
)

// Recoverable operation errors.
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrWeakPassword        = errors.New("password does not meet the strength policy")
	ErrLastAdmin           = errors.New("the last admin user cannot be deleted")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrBarcodeTooShort     = errors.New("scanned code is too short")
	ErrInvalidProduct      = errors.New("product code and name are required")
	ErrBadRole             = errors.New("role must be admin or cashier")
	ErrBadQuantity         = errors.New("quantity must be at least 1")
	ErrCartLineNotFound    = errors.New("cart line not found")
)

var sqliteMagic = []byte("SQLite format 3\x00")

// Config wires an Engine.
type Config struct {
	DB       *gorm.DB
	Snapshot *snapshot.Store
	Bus      EventBus.Bus
	// DBType is the gorm dialector name; snapshotting applies to sqlite.
	DBType string
	// DBPath is the sqlite working database file.
	DBPath string
	// Reopen re-opens the working database after a restore replaced its file.
	Reopen func() (*gorm.DB, error)
}

// Engine owns the relational entities. All mutations are serialized through
// one lock (single cooperative writer) and each is followed by a full
// snapshot rewrite.
type Engine struct {
	mu     sync.Mutex
	db     *gorm.DB
	snap   *snapshot.Store
	bus    EventBus.Bus
	dbType string
	dbPath string
	reopen func() (*gorm.DB, error)
	cart   *Cart
}

// New builds an Engine over an opened working database.
func New(cfg Config) *Engine {
	e := &Engine{
		db:     cfg.DB,
		snap:   cfg.Snapshot,
		bus:    cfg.Bus,
		dbType: cfg.DBType,
		dbPath: cfg.DBPath,
		reopen: cfg.Reopen,
		cart:   NewCart(),
	}
	if e.dbType != "sqlite" && e.snap != nil {
		zap.L().Warn("snapshot persistence is only supported for sqlite; disabled",
			zap.String("db_type", e.dbType))
		e.snap = nil
	}
	return e
}

// DB returns the current working database handle.
func (e *Engine) DB() *gorm.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

// Cart returns the session cart.
func (e *Engine) Cart() *Cart { return e.cart }

// mutate runs fn in one database transaction and, on success, rewrites the
// persisted snapshot. Unlike the lookup path, a snapshot write failure is
// surfaced; the committed mutation stands.
func (e *Engine) mutate(fn func(tx *gorm.DB) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.db.Transaction(fn); err != nil {
		return err
	}
	return e.persistSnapshot()
}

// persistSnapshot serializes the working database and overwrites the stored
// blob. Callers hold e.mu.
func (e *Engine) persistSnapshot() error {
	if e.snap == nil {
		return nil
	}
	data, err := e.dumpLocked()
	if err != nil {
		return errors.Wrap(err, "serialize database")
	}
	if err := e.snap.Persist(data); err != nil {
		return errors.Wrap(err, "persist database snapshot")
	}
	return nil
}

// dumpLocked produces a consistent serialized copy of the working database
// via VACUUM INTO a scratch file. Callers hold e.mu.
func (e *Engine) dumpLocked() ([]byte, error) {
	scratch := filepath.Join(filepath.Dir(e.dbPath),
		fmt.Sprintf(".pos-dump-%d.sqlite", time.Now().UnixNano()))
	defer os.Remove(scratch)
	if err := e.db.Exec("VACUUM INTO ?", scratch).Error; err != nil {
		return nil, err
	}
	return os.ReadFile(scratch)
}

// ExportSnapshot returns a fresh serialized copy of the database.
func (e *Engine) ExportSnapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dbType != "sqlite" {
		return nil, errors.New("database export is only supported for sqlite")
	}
	return e.dumpLocked()
}

// Restore fully replaces the working database from a serialized blob,
// persists it as the new snapshot, and records a db_restore log entry.
// Confirming destructive intent is the caller's responsibility. The
// EvtDbRestored event fires after the engine lock is released; subscribers
// may call back into the engine (the application uses this to pick up the
// reopened handle).
func (e *Engine) Restore(data []byte) error {
	if e.dbType != "sqlite" {
		return errors.New("database restore is only supported for sqlite")
	}
	if !bytes.HasPrefix(data, sqliteMagic) {
		return errors.New("import data is not a sqlite database")
	}

	if err := e.restoreLocked(data); err != nil {
		return err
	}

	e.publish(EvtDbRestored, len(data))
	zap.L().Info("database restored from import", zap.Int("bytes", len(data)))
	return nil
}

func (e *Engine) restoreLocked(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := os.WriteFile(e.dbPath, data, 0o600); err != nil {
		return errors.Wrap(err, "write working database")
	}
	ndb, err := e.reopen()
	if err != nil {
		return errors.Wrap(err, "reopen working database")
	}
	e.db = ndb
	if err := e.db.AutoMigrate(domain.Tables...); err != nil {
		zap.L().Warn("migration after restore failed", zap.Error(err))
	}

	appendLog(e.db, domain.LogDbRestore, "Database imported from file/base64")
	if e.snap != nil {
		if err := e.snap.Persist(data); err != nil {
			return errors.Wrap(err, "persist imported snapshot")
		}
	}
	return nil
}

func (e *Engine) publish(topic string, args ...interface{}) {
	if e.bus != nil {
		e.bus.Publish(topic, args...)
	}
}
