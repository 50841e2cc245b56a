package domain

import "time"

// Product is a catalog item keyed by its barcode.
type Product struct {
	Code      string    `gorm:"primaryKey;size:32" json:"code" form:"code" csv:"code"`
	Name      string    `gorm:"index" json:"name" form:"name" csv:"name"`
	Price     float64   `json:"price" form:"price" csv:"price"`
	Stock     int       `json:"stock" form:"stock" csv:"stock"`
	Category  string    `gorm:"index" json:"category" form:"category" csv:"category"`
	CreatedAt time.Time `json:"created_at" csv:"-"`
	UpdatedAt time.Time `json:"updated_at" csv:"-"`
}

// TableName Specify table name
func (Product) TableName() string {
	return "products"
}
