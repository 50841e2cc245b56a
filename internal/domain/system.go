package domain

import "time"

// User roles.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// PosUser is an operator account. At least one admin must exist at all times.
type PosUser struct {
	Username  string    `gorm:"primaryKey;size:64" json:"username" form:"username"`
	Password  string    `json:"-" form:"password"`
	Role      string    `gorm:"index" json:"role" form:"role"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (PosUser) TableName() string {
	return "pos_user"
}

// Audit log types.
const (
	LogProductUpdate = "product_update"
	LogStockChange   = "stock_change"
	LogTransaction   = "transaction"
	LogUserChange    = "user_change"
	LogDbRestore     = "db_restore"
)

// PosLog is an append-only audit record, ordered by id.
type PosLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	Type        string    `gorm:"index" json:"type"`
	Description string    `json:"description"`
}

// TableName Specify table name
func (PosLog) TableName() string {
	return "pos_log"
}

type SysConfig struct {
	ID        int64     `json:"id,string" form:"id"`
	Sort      int       `json:"sort" form:"sort"`
	Type      string    `gorm:"index" json:"type" form:"type"`
	Name      string    `gorm:"index" json:"name" form:"name"`
	Value     string    `json:"value" form:"value"`
	Remark    string    `json:"remark" form:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysConfig) TableName() string {
	return "sys_config"
}
