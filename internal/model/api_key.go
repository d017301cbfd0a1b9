package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey represents a client's API key for accessing the summarization service.
type APIKey struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	Key          string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	LastUsed     *time.Time `json:"lastUsed"`
	IsActive     bool       `gorm:"not null" json:"isActive"`
	Usage        int        `gorm:"not null" json:"usage"`
	MonthlyLimit int        `gorm:"not null" json:"monthlyLimit"`
	UserID       *string    `gorm:"type:varchar(255);index" json:"userId,omitempty"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Remaining returns how many requests the key may still make this month.
func (k *APIKey) Remaining() int {
	if r := k.MonthlyLimit - k.Usage; r > 0 {
		return r
	}
	return 0
}

// Masked returns a copy of the key safe to show in listings.
func (k APIKey) Masked() APIKey {
	k.Key = MaskKey(k.Key)
	return k
}
