package engine

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/domain"
)

// appendLog writes one append-only audit entry inside an existing
// transaction scope. Audit failures never abort the surrounding mutation.
func appendLog(tx *gorm.DB, logType, description string) {
	err := tx.Create(&domain.PosLog{
		Timestamp:   time.Now(),
		Type:        logType,
		Description: description,
	}).Error
	if err != nil {
		zap.L().Warn("failed to append audit log",
			zap.String("type", logType), zap.Error(err))
	}
}

// AppendLog records a standalone audit entry as its own mutation.
func (e *Engine) AppendLog(logType, description string) error {
	return e.mutate(func(tx *gorm.DB) error {
		appendLog(tx, logType, description)
		return nil
	})
}

// ListLogs returns the newest entries first, capped at limit (default 50).
func (e *Engine) ListLogs(limit int) ([]domain.PosLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []domain.PosLog
	if err := e.DB().Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
