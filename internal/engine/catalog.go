package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talkincode/tinypos/internal/domain"
)

// UpsertProduct creates or fully replaces a catalog item keyed by its code.
func (e *Engine) UpsertProduct(p *domain.Product) error {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	if p.Code == "" || p.Name == "" {
		return ErrInvalidProduct
	}
	err := e.mutate(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error; err != nil {
			return err
		}
		appendLog(tx, domain.LogProductUpdate, fmt.Sprintf("Saved product %s - %s", p.Code, p.Name))
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(EvtProductUpdated, p.Code)
	return nil
}

// GetProductByCode looks a product up by its exact code.
func (e *Engine) GetProductByCode(code string) (*domain.Product, error) {
	var p domain.Product
	err := e.DB().Where("code = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns the whole catalog ordered by code.
func (e *Engine) ListProducts() ([]domain.Product, error) {
	var rows []domain.Product
	if err := e.DB().Order("code").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteProduct removes a catalog item by code.
func (e *Engine) DeleteProduct(code string) error {
	err := e.mutate(func(tx *gorm.DB) error {
		res := tx.Where("code = ?", code).Delete(&domain.Product{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		appendLog(tx, domain.LogProductUpdate, fmt.Sprintf("Deleted product %s", code))
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(EvtProductUpdated, code)
	return nil
}

// AdjustStock applies a signed delta to a product's stock and returns the
// new level. The operation fails only when the product does not exist;
// negative stock is allowed but flagged in the audit log.
func (e *Engine) AdjustStock(code string, delta int) (int, error) {
	var newStock int
	err := e.mutate(func(tx *gorm.DB) error {
		n, err := adjustStockTx(tx, code, delta)
		if err != nil {
			return err
		}
		newStock = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.publish(EvtStockChanged, code, delta)
	return newStock, nil
}

// adjustStockTx performs the stock change and its audit entry inside an
// existing transaction.
func adjustStockTx(tx *gorm.DB, code string, delta int) (int, error) {
	var p domain.Product
	if err := tx.Where("code = ?", code).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}
	newStock := p.Stock + delta
	if err := tx.Model(&domain.Product{}).Where("code = ?", code).
		Update("stock", newStock).Error; err != nil {
		return 0, err
	}
	desc := fmt.Sprintf("Stock %s changed: %d -> %d", code, p.Stock, newStock)
	if newStock < 0 {
		desc += " (negative stock)"
	}
	appendLog(tx, domain.LogStockChange, desc)
	return newStock, nil
}

// NormalizeBarcode applies the scanning contract: decoded strings shorter
// than 12 characters are not candidate codes, and anything longer than 13
// keeps only its last 13 characters.
func NormalizeBarcode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < 12 {
		return "", ErrBarcodeTooShort
	}
	if len(code) > 13 {
		code = code[len(code)-13:]
	}
	return code, nil
}

// LookupBarcode resolves a decoded scanner string to a product.
func (e *Engine) LookupBarcode(code string) (*domain.Product, error) {
	key, err := NormalizeBarcode(code)
	if err != nil {
		return nil, err
	}
	return e.GetProductByCode(key)
}
