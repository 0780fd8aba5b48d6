package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// APIKey is an opaque bearer token that grants remote callers access to the JSON API.
type APIKey struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Key         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"`
	Description string     `gorm:"type:varchar(200)" json:"description"`
	IsActive    bool       `gorm:"default:true;not null" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// GenerateAPIKey returns a new random 64 character hex token.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// KeySuffix returns the last 4 characters of a key for logging.
func KeySuffix(key string) string {
	if len(key) > 4 {
		return key[len(key)-4:]
	}
	return key
}
