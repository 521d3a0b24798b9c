package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mudgate/mudgate/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&GatewayUser{}, &Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Settings helpers

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// User mapping helpers

// UpsertUser records that an identity was seen, with its current account
// mapping. encryptedPassword must already be encrypted by the caller;
// plaintext never reaches this package. createdAccount is sticky: once a
// row says the gateway created the backend account, that stays true.
func UpsertUser(ident, account, encryptedPassword, displayName string, createdAccount bool) error {
	var u GatewayUser
	err := DB.Where("identity = ?", ident).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DB.Create(&GatewayUser{
			Identity:          ident,
			AccountName:       account,
			PasswordEncrypted: encryptedPassword,
			LastDisplayName:   displayName,
			CreatedAccount:    createdAccount,
			LastSeenAt:        time.Now(),
		}).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"account_name":       account,
		"password_encrypted": encryptedPassword,
		"last_seen_at":       time.Now(),
	}
	if displayName != "" {
		updates["last_display_name"] = displayName
	}
	if createdAccount {
		updates["created_account"] = true
	}
	return DB.Model(&u).Updates(updates).Error
}

func GetUserByIdentity(ident string) (*GatewayUser, error) {
	var u GatewayUser
	if err := DB.Where("identity = ?", ident).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func ListUsers() ([]GatewayUser, error) {
	var users []GatewayUser
	if err := DB.Order("last_seen_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
