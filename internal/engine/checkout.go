package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/domain"
)

// CartLine is one transient line of the session cart. Name and unit price
// are denormalized from the product at add time.
type CartLine struct {
	ProductCode string  `json:"product_code"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// LineTotal returns quantity times unit price.
func (l CartLine) LineTotal() float64 {
	return float64(l.Quantity) * l.UnitPrice
}

// Cart is the single session cart, owned by the engine per the single-tab
// assumption.
type Cart struct {
	mu    sync.Mutex
	lines []CartLine
}

func NewCart() *Cart {
	return &Cart{}
}

// Lines returns a copy of the cart content.
func (c *Cart) Lines() []CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total returns the sum of all line totals.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, l := range c.lines {
		total += l.LineTotal()
	}
	return total
}

func (c *Cart) add(p *domain.Product, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductCode == p.Code {
			c.lines[i].Quantity += qty
			return
		}
	}
	c.lines = append(c.lines, CartLine{
		ProductCode: p.Code,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.Price,
	})
}

func (c *Cart) setQuantity(code string, qty int) error {
	if qty < 1 {
		return ErrBadQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductCode == code {
			c.lines[i].Quantity = qty
			return nil
		}
	}
	return ErrCartLineNotFound
}

func (c *Cart) remove(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductCode == code {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return ErrCartLineNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// AddToCart looks the product up and merges it into the session cart.
func (e *Engine) AddToCart(code string, qty int) error {
	if qty < 1 {
		return ErrBadQuantity
	}
	p, err := e.GetProductByCode(code)
	if err != nil {
		return err
	}
	e.cart.add(p, qty)
	return nil
}

// SetCartQuantity updates one line's quantity, minimum 1.
func (e *Engine) SetCartQuantity(code string, qty int) error {
	return e.cart.setQuantity(code, qty)
}

// RemoveFromCart deletes one line.
func (e *Engine) RemoveFromCart(code string) error {
	return e.cart.remove(code)
}

// Checkout reduces the session cart into one immutable transaction and
// clears the cart on success.
func (e *Engine) Checkout(paymentMethod string) (*domain.Transaction, error) {
	trx, err := e.RecordTransaction(e.cart.Lines(), paymentMethod)
	if err != nil {
		return nil, err
	}
	e.cart.Clear()
	return trx, nil
}

// RecordTransaction atomically creates one Transaction, its items, the
// matching stock decrements, and a transaction audit entry.
func (e *Engine) RecordTransaction(lines []CartLine, paymentMethod string) (*domain.Transaction, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	var total float64
	for _, l := range lines {
		total += l.LineTotal()
	}

	trx := &domain.Transaction{
		Timestamp:     time.Now(),
		PaymentMethod: paymentMethod,
		Total:         total,
	}

	err := e.mutate(func(tx *gorm.DB) error {
		trx.InvoiceNumber = nextInvoiceNumber(tx, trx.Timestamp)
		if err := tx.Create(trx).Error; err != nil {
			return err
		}
		for _, l := range lines {
			item := domain.TransactionItem{
				TransactionID: trx.ID,
				ProductCode:   l.ProductCode,
				ProductName:   l.ProductName,
				Quantity:      l.Quantity,
				UnitPrice:     l.UnitPrice,
				LineTotal:     l.LineTotal(),
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			trx.Items = append(trx.Items, item)
			if _, err := adjustStockTx(tx, l.ProductCode, -l.Quantity); err != nil {
				// a line can reference a product deleted since add time;
				// the sale still stands
				if err != ErrProductNotFound {
					return err
				}
			}
		}
		appendLog(tx, domain.LogTransaction,
			fmt.Sprintf("Transaction %s created, total %.0f", trx.InvoiceNumber, total))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(EvtTransactionCreated, trx.InvoiceNumber, total)
	return trx, nil
}

// nextInvoiceNumber derives a unique invoice id from the creation time,
// advancing by a millisecond on the rare collision.
func nextInvoiceNumber(tx *gorm.DB, ts time.Time) string {
	ms := ts.UnixMilli()
	for {
		invoice := fmt.Sprintf("INV-%d", ms)
		var count int64
		tx.Model(&domain.Transaction{}).Where("invoice_number = ?", invoice).Count(&count)
		if count == 0 {
			return invoice
		}
		ms++
	}
}

// GetTransaction returns one transaction with its items.
func (e *Engine) GetTransaction(id int64) (*domain.Transaction, error) {
	var trx domain.Transaction
	if err := e.DB().Preload("Items").First(&trx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trx, nil
}
