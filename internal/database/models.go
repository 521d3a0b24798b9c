package database

import "time"

// GatewayUser is the persistent identity→account mapping: one row per
// external chat identity that has ever talked to the gateway.
type GatewayUser struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Identity          string    `gorm:"uniqueIndex;not null;size:64" json:"identity"`
	AccountName       string    `gorm:"not null" json:"account_name"`
	PasswordEncrypted string    `json:"-"` // Fernet-encrypted
	LastDisplayName   string    `json:"last_display_name"`
	CreatedAccount    bool      `gorm:"not null;default:false" json:"created_account"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
