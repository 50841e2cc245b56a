package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/pkg/common"
)

// ValidatePassword checks the strength policy for a role: minimum length 6
// for everyone; admins additionally need at least one letter and one digit.
func ValidatePassword(password, role string) error {
	if len(password) < 6 {
		return ErrWeakPassword
	}
	if role == domain.RoleAdmin {
		var hasLetter, hasDigit bool
		for _, r := range password {
			switch {
			case r >= '0' && r <= '9':
				hasDigit = true
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
				hasLetter = true
			}
		}
		if !hasLetter || !hasDigit {
			return ErrWeakPassword
		}
	}
	return nil
}

// HashPassword derives the stored hash for a password.
func HashPassword(password string) string {
	return common.Pbkdf2HashWithSalt(password, common.GetSecretSalt())
}

// CreateUser adds an operator account after validating role and password
// strength. Duplicate usernames are rejected.
func (e *Engine) CreateUser(username, password, role string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return ErrBadRole
	}
	if err := ValidatePassword(password, role); err != nil {
		return err
	}

	err := e.mutate(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.PosUser{}).Where("username = ?", username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}
		if err := tx.Create(&domain.PosUser{
			Username: username,
			Password: HashPassword(password),
			Role:     role,
		}).Error; err != nil {
			return err
		}
		appendLog(tx, domain.LogUserChange, fmt.Sprintf("User %s created (%s)", username, role))
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(EvtUserChanged, username)
	return nil
}

// DeleteUser removes an account. Deleting the sole remaining admin is
// rejected.
func (e *Engine) DeleteUser(username string) error {
	err := e.mutate(func(tx *gorm.DB) error {
		var u domain.PosUser
		if err := tx.Where("username = ?", username).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if u.Role == domain.RoleAdmin {
			var admins int64
			if err := tx.Model(&domain.PosUser{}).Where("role = ?", domain.RoleAdmin).
				Count(&admins).Error; err != nil {
				return err
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		if err := tx.Where("username = ?", username).Delete(&domain.PosUser{}).Error; err != nil {
			return err
		}
		appendLog(tx, domain.LogUserChange, fmt.Sprintf("User %s deleted", username))
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(EvtUserChanged, username)
	return nil
}

// ChangePassword replaces a user's password, validated against the target
// account's role.
func (e *Engine) ChangePassword(username, newPassword string) error {
	err := e.mutate(func(tx *gorm.DB) error {
		var u domain.PosUser
		if err := tx.Where("username = ?", username).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := ValidatePassword(newPassword, u.Role); err != nil {
			return err
		}
		if err := tx.Model(&domain.PosUser{}).Where("username = ?", username).
			Updates(map[string]interface{}{
				"password":   HashPassword(newPassword),
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		appendLog(tx, domain.LogUserChange, fmt.Sprintf("Password changed for %s", username))
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(EvtUserChanged, username)
	return nil
}

// Authenticate verifies credentials and records the login time.
func (e *Engine) Authenticate(username, password string) (*domain.PosUser, error) {
	var u domain.PosUser
	err := e.DB().Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Password != HashPassword(password) {
		return nil, ErrInvalidCredentials
	}

	err = e.mutate(func(tx *gorm.DB) error {
		return tx.Model(&domain.PosUser{}).Where("username = ?", username).
			Update("last_login", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns one account by username.
func (e *Engine) GetUser(username string) (*domain.PosUser, error) {
	var u domain.PosUser
	err := e.DB().Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all accounts ordered by username.
func (e *Engine) ListUsers() ([]domain.PosUser, error) {
	var users []domain.PosUser
	if err := e.DB().Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CountAdmins returns the number of admin accounts.
func (e *Engine) CountAdmins() (int64, error) {
	var n int64
	err := e.DB().Model(&domain.PosUser{}).Where("role = ?", domain.RoleAdmin).Count(&n).Error
	return n, err
}
