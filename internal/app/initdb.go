package app

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/engine"
	"github.com/talkincode/tinypos/pkg/common"
)

// checkSuper guarantees a usable admin account. A fresh database gets the
// default admin; a damaged one (blank password, demoted role) is repaired so
// the operator is never locked out of a single-terminal deployment.
func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "admin123"

	hashedPassword := engine.HashPassword(defaultPassword)

	var user domain.PosUser
	err := a.gormDB.Where("username = ?", superUsername).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.PosUser{
			Username:  superUsername,
			Password:  hashedPassword,
			Role:      domain.RoleAdmin,
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query default admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(user.Password) == ""
	resetRole := !strings.EqualFold(user.Role, domain.RoleAdmin)

	if !resetPassword && !resetRole {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = hashedPassword
	}
	if resetRole {
		updates["role"] = domain.RoleAdmin
	}

	if err := a.gormDB.Model(&domain.PosUser{}).Where("username = ?", user.Username).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair default admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("roleReset", resetRole))
}

type settingSchema struct {
	Key         string
	Default     string
	Description string
}

var settingSchemas = []settingSchema{
	{Key: "store.StoreName", Default: "TinyPOS Store", Description: "Store name printed on receipts"},
	{Key: "store.StoreAddress", Default: "", Description: "Store address printed on receipts"},
	{Key: "store.Currency", Default: "IDR", Description: "ISO currency code used for receipt amounts"},
	{Key: "store.ReceiptFooter", Default: "Thank you for shopping", Description: "Closing line on printed receipts"},
	{Key: "pos.LowStockThreshold", Default: "5", Description: "Stock level at or below which a product is reported as low"},
	{Key: "pos.LogRetentionDays", Default: "365", Description: "Days of audit log history kept by the daily pruning job"},
	{Key: "pos.AllowNegativeStock", Default: "true", Description: "Whether a sale may take stock below zero"},
}

func (a *Application) checkSettings() {
	// Iterate over all configuration definitions, checking and initializing missing entries
	for sortid, schema := range settingSchemas {
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		category := parts[0]
		name := parts[1]

		// Check whether the configuration already exists
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		// e.g., if the configuration does not exist, create the default configuration
		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     common.UUIDint64(),
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}

// checkProducts seeds a small demo catalog so a fresh terminal has something
// to scan.
func (a *Application) checkProducts() {
	defaultProducts := []domain.Product{
		{Code: "8901234567890", Name: "Instant Noodles", Price: 3500, Stock: 100, Category: "Food"},
		{Code: "8901234567897", Name: "Bottled Tea 450ml", Price: 5000, Stock: 48, Category: "Drinks"},
		{Code: "8901234567898", Name: "Bath Soap", Price: 12000, Stock: 30, Category: "Health"},
	}

	var count int64
	a.gormDB.Model(&domain.Product{}).Count(&count)
	if count > 0 {
		return
	}

	for _, p := range defaultProducts {
		if err := a.gormDB.Create(&p).Error; err != nil {
			zap.L().Error("failed to create demo product", zap.String("code", p.Code), zap.Error(err))
		} else {
			zap.L().Info("initialized demo product", zap.String("code", p.Code), zap.String("name", p.Name))
		}
	}
}
