package domain

import "time"

// Transaction is a completed checkout. Immutable once created.
type Transaction struct {
	ID            int64             `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Timestamp     time.Time         `gorm:"index" json:"timestamp"`
	InvoiceNumber string            `gorm:"uniqueIndex;size:64" json:"invoice_number"`
	PaymentMethod string            `json:"payment_method"`
	Total         float64           `json:"total"`
	Items         []TransactionItem `gorm:"foreignKey:TransactionID" json:"items,omitempty"`
}

// TableName Specify table name
func (Transaction) TableName() string {
	return "transactions"
}

// TransactionItem is one line of a transaction, created atomically with its
// parent and never mutated. Name and unit price are denormalized from the
// product at sale time.
type TransactionItem struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id,string"`
	TransactionID int64   `gorm:"index" json:"transaction_id,string"`
	ProductCode   string  `json:"product_code"`
	ProductName   string  `json:"product_name"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
}

// TableName Specify table name
func (TransactionItem) TableName() string {
	return "transaction_items"
}
