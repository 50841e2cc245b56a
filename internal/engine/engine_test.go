package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/snapshot"
)

func openTestDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return db
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pos.sqlite")
	snap, err := snapshot.Open(filepath.Join(dir, "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	return New(Config{
		DB:       openTestDB(t, dbPath),
		Snapshot: snap,
		DBType:   "sqlite",
		DBPath:   dbPath,
		Reopen: func() (*gorm.DB, error) {
			return gorm.Open(sqlite.Open(dbPath), &gorm.Config{
				Logger: logger.Default.LogMode(logger.Silent),
			})
		},
	})
}

func seedProducts(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.UpsertProduct(&domain.Product{
		Code: "8901234567890", Name: "Drink A", Price: 5000, Stock: 100, Category: "Drinks",
	}))
	require.NoError(t, e.UpsertProduct(&domain.Product{
		Code: "8901234567897", Name: "Bath Soap", Price: 12000, Stock: 50, Category: "Health",
	}))
}

func TestUpsertAndLookupProduct(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	p, err := e.GetProductByCode("8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Drink A", p.Name)
	assert.Equal(t, 100, p.Stock)

	// upsert fully replaces by code
	require.NoError(t, e.UpsertProduct(&domain.Product{
		Code: "8901234567890", Name: "Drink A+", Price: 5500, Stock: 80, Category: "Drinks",
	}))
	p, err = e.GetProductByCode("8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Drink A+", p.Name)
	assert.Equal(t, 5500.0, p.Price)

	_, err = e.GetProductByCode("0000000000000")
	assert.ErrorIs(t, err, ErrProductNotFound)

	assert.ErrorIs(t, e.UpsertProduct(&domain.Product{Code: "", Name: "x"}), ErrInvalidProduct)
}

func TestAdjustStock(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	n, err := e.AdjustStock("8901234567890", -30)
	require.NoError(t, err)
	assert.Equal(t, 70, n)

	_, err = e.AdjustStock("missing-code", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	// negative stock is allowed but audit-logged
	n, err = e.AdjustStock("8901234567890", -100)
	require.NoError(t, err)
	assert.Equal(t, -30, n)

	logs, err := e.ListLogs(10)
	require.NoError(t, err)
	var flagged bool
	for _, l := range logs {
		if l.Type == domain.LogStockChange && strings.Contains(l.Description, "negative stock") {
			flagged = true
		}
	}
	assert.True(t, flagged, "drop below zero must be flagged in the audit log")
}

func TestRecordTransactionArithmetic(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	trx, err := e.RecordTransaction([]CartLine{
		{ProductCode: "8901234567890", ProductName: "Drink A", Quantity: 2, UnitPrice: 5000},
		{ProductCode: "8901234567897", ProductName: "Bath Soap", Quantity: 1, UnitPrice: 12000},
	}, "cash")
	require.NoError(t, err)

	assert.Equal(t, 22000.0, trx.Total)
	assert.True(t, strings.HasPrefix(trx.InvoiceNumber, "INV-"))
	require.Len(t, trx.Items, 2)
	assert.Equal(t, 10000.0, trx.Items[0].LineTotal)
	assert.Equal(t, 12000.0, trx.Items[1].LineTotal)

	a, err := e.GetProductByCode("8901234567890")
	require.NoError(t, err)
	assert.Equal(t, 98, a.Stock)
	b, err := e.GetProductByCode("8901234567897")
	require.NoError(t, err)
	assert.Equal(t, 49, b.Stock)

	// immutably persisted with items
	stored, err := e.GetTransaction(trx.ID)
	require.NoError(t, err)
	assert.Equal(t, trx.InvoiceNumber, stored.InvoiceNumber)
	assert.Len(t, stored.Items, 2)

	logs, err := e.ListLogs(10)
	require.NoError(t, err)
	assert.Equal(t, domain.LogTransaction, logs[0].Type)
}

func TestRecordTransactionRejectsEmptyCart(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RecordTransaction(nil, "cash")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestGetTransactionMissing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GetTransaction(999)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestCartLifecycle(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	require.NoError(t, e.AddToCart("8901234567890", 1))
	require.NoError(t, e.AddToCart("8901234567890", 1)) // merges
	require.NoError(t, e.AddToCart("8901234567897", 1))

	lines := e.Cart().Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 22000.0, e.Cart().Total())

	require.NoError(t, e.SetCartQuantity("8901234567897", 3))
	assert.Equal(t, 46000.0, e.Cart().Total())
	assert.ErrorIs(t, e.SetCartQuantity("8901234567897", 0), ErrBadQuantity)
	assert.ErrorIs(t, e.SetCartQuantity("none", 2), ErrCartLineNotFound)

	require.NoError(t, e.RemoveFromCart("8901234567897"))
	assert.Len(t, e.Cart().Lines(), 1)

	assert.ErrorIs(t, e.AddToCart("missing", 1), ErrProductNotFound)

	trx, err := e.Checkout("qris")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, trx.Total)
	assert.Empty(t, e.Cart().Lines(), "checkout clears the cart")

	_, err = e.Checkout("cash")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		role     string
		ok       bool
	}{
		{"short", domain.RoleCashier, false},
		{"longenough", domain.RoleCashier, true},
		{"123456", domain.RoleCashier, true},
		{"123456", domain.RoleAdmin, false},
		{"abcdef", domain.RoleAdmin, false},
		{"abc123", domain.RoleAdmin, true},
		{"admin123", domain.RoleAdmin, true},
	}
	for _, c := range cases {
		err := ValidatePassword(c.password, c.role)
		if c.ok {
			assert.NoError(t, err, "%s/%s", c.password, c.role)
		} else {
			assert.ErrorIs(t, err, ErrWeakPassword, "%s/%s", c.password, c.role)
		}
	}
}

func TestUserManagement(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.CreateUser("admin", "admin123", domain.RoleAdmin))
	require.NoError(t, e.CreateUser("kasir1", "kasir123", domain.RoleCashier))

	assert.ErrorIs(t, e.CreateUser("admin", "other123", domain.RoleAdmin), ErrUserExists)
	assert.ErrorIs(t, e.CreateUser("weak", "12345", domain.RoleCashier), ErrWeakPassword)
	assert.ErrorIs(t, e.CreateUser("badrole", "abc123", "manager"), ErrBadRole)

	// deleting the sole remaining admin is rejected
	assert.ErrorIs(t, e.DeleteUser("admin"), ErrLastAdmin)

	// a non-last admin can be deleted
	require.NoError(t, e.CreateUser("admin2", "abc123", domain.RoleAdmin))
	require.NoError(t, e.DeleteUser("admin2"))

	n, err := e.CountAdmins()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, e.DeleteUser("ghost"), ErrUserNotFound)

	u, err := e.Authenticate("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	_, err = e.Authenticate("admin", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.Authenticate("ghost", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, e.ChangePassword("kasir1", "newpass1"))
	_, err = e.Authenticate("kasir1", "newpass1")
	require.NoError(t, err)
	// strength checked against the target's role
	assert.ErrorIs(t, e.ChangePassword("admin", "nodigits"), ErrWeakPassword)
}

func TestNormalizeBarcode(t *testing.T) {
	_, err := NormalizeBarcode("12345678901")
	assert.ErrorIs(t, err, ErrBarcodeTooShort)

	code, err := NormalizeBarcode("890123456789")
	require.NoError(t, err)
	assert.Equal(t, "890123456789", code)

	// scanners sometimes prepend extras; only the last 13 characters count
	code, err = NormalizeBarcode("008901234567890")
	require.NoError(t, err)
	assert.Equal(t, "8901234567890", code)
}

func TestBarcodeLookup(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	p, err := e.LookupBarcode("xx8901234567890")
	require.NoError(t, err)
	assert.Equal(t, "Drink A", p.Name)
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)
	require.NoError(t, e.CreateUser("admin", "admin123", domain.RoleAdmin))
	_, err := e.RecordTransaction([]CartLine{
		{ProductCode: "8901234567890", ProductName: "Drink A", Quantity: 2, UnitPrice: 5000},
	}, "cash")
	require.NoError(t, err)

	blob, err := e.ExportSnapshot()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	wantProducts, err := e.ListProducts()
	require.NoError(t, err)
	wantLogs, err := e.ListLogs(100)
	require.NoError(t, err)

	// a fresh engine restored from the blob reproduces the exact state
	e2 := newTestEngine(t)
	require.NoError(t, e2.Restore(blob))

	gotProducts, err := e2.ListProducts()
	require.NoError(t, err)
	assert.Equal(t, len(wantProducts), len(gotProducts))
	for i := range wantProducts {
		assert.Equal(t, wantProducts[i].Code, gotProducts[i].Code)
		assert.Equal(t, wantProducts[i].Stock, gotProducts[i].Stock)
		assert.Equal(t, wantProducts[i].Price, gotProducts[i].Price)
	}

	var trxCount int64
	require.NoError(t, e2.DB().Model(&domain.Transaction{}).Count(&trxCount).Error)
	assert.EqualValues(t, 1, trxCount)

	gotLogs, err := e2.ListLogs(100)
	require.NoError(t, err)
	// restore appends its own db_restore entry on top of the imported logs
	require.Len(t, gotLogs, len(wantLogs)+1)
	assert.Equal(t, domain.LogDbRestore, gotLogs[0].Type)

	assert.ErrorContains(t, e2.Restore([]byte("not a database")), "not a sqlite database")
}

func TestPersistedSnapshotTracksMutations(t *testing.T) {
	e := newTestEngine(t)
	seedProducts(t, e)

	data, err := e.snap.Load()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "SQLite format 3"),
		"every mutation rewrites the snapshot with the serialized database")
}
