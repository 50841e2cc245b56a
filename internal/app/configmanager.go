package app

import (
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/talkincode/tinypos/internal/domain"
)

// ConfigManager reads and writes sys_config settings with a small in-memory
// cache in front of the database.
type ConfigManager struct {
	app   *Application
	mu    sync.RWMutex
	cache map[string]string
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app, cache: make(map[string]string)}
}

func (m *ConfigManager) getValue(category, name string) string {
	key := category + "." + name
	m.mu.RLock()
	if v, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return v
	}
	m.mu.RUnlock()

	var cfg domain.SysConfig
	err := m.app.gormDB.Where("type = ? and name = ?", category, name).First(&cfg).Error
	if err != nil {
		return ""
	}

	m.mu.Lock()
	m.cache[key] = cfg.Value
	m.mu.Unlock()
	return cfg.Value
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.getValue(category, name)
}

func (m *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(m.getValue(category, name))
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.getValue(category, name))
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.getValue(category, name))
}

// StoreSettings is the typed view of the "store" settings category used by
// receipt rendering.
type StoreSettings struct {
	StoreName     string `mapstructure:"StoreName" json:"store_name"`
	StoreAddress  string `mapstructure:"StoreAddress" json:"store_address"`
	Currency      string `mapstructure:"Currency" json:"currency"`
	ReceiptFooter string `mapstructure:"ReceiptFooter" json:"receipt_footer"`
}

// StoreSettings loads the store category into its typed form.
func (m *ConfigManager) StoreSettings() StoreSettings {
	raw := make(map[string]interface{})
	var rows []domain.SysConfig
	if err := m.app.gormDB.Where("type = ?", "store").Find(&rows).Error; err == nil {
		for _, r := range rows {
			raw[r.Name] = r.Value
		}
	}
	var out StoreSettings
	if err := mapstructure.Decode(raw, &out); err != nil {
		zap.L().Warn("decode store settings failed", zap.Error(err))
	}
	return out
}

// SaveSettings updates existing settings rows. Keys are "category.Name";
// unknown keys are rejected so a typo cannot create an orphan row.
func (m *ConfigManager) SaveSettings(settings map[string]interface{}) error {
	for key, value := range settings {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			return errors.Errorf("invalid settings key %q", key)
		}
		if !knownSettingKey(key) {
			return errors.Errorf("unknown settings key %q", key)
		}

		strval := cast.ToString(value)
		err := m.app.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", parts[0], parts[1]).
			Updates(map[string]interface{}{
				"value":      strval,
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			return errors.Wrapf(err, "save setting %s", key)
		}

		m.mu.Lock()
		m.cache[key] = strval
		m.mu.Unlock()
	}
	return nil
}

// ListSettings returns all settings rows ordered for display.
func (m *ConfigManager) ListSettings() ([]domain.SysConfig, error) {
	var rows []domain.SysConfig
	err := m.app.gormDB.Order("sort").Find(&rows).Error
	return rows, err
}

func knownSettingKey(key string) bool {
	for _, s := range settingSchemas {
		if s.Key == key {
			return true
		}
	}
	return false
}
