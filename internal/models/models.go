package models

import (
	"time"
)

type UserStatus = string

const (
	UserStatusPending UserStatus = "pending"
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash []byte     `gorm:"type:varbinary(64)" json:"-"`
	Status       UserStatus `gorm:"size:32;default:pending" json:"status"`
	IsAdmin      bool       `gorm:"default:false" json:"is_admin"`
}

type Tariff struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name         string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Description  string `gorm:"size:1024" json:"description,omitempty"`
	DurationDays int    `gorm:"default:30" json:"duration_days"`
	PriceCents   int64  `gorm:"not null" json:"price_cents"`
}

// UserTariff — подписка пользователя на тариф.
// Активная подписка: expires_at в будущем.
type UserTariff struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	UserID    uint `gorm:"index;not null" json:"user_id"`
	TariffID  uint `gorm:"index;not null" json:"tariff_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID            uint   `gorm:"index;not null" json:"user_id"`
	AmountCents       int64  `gorm:"not null" json:"amount_cents"`
	Currency          string `gorm:"size:8;default:USD" json:"currency"`
	Status            string `gorm:"size:32;default:pending" json:"status"`
	Provider          string `gorm:"size:64" json:"provider,omitempty"`
	ProviderPaymentID string `gorm:"size:255" json:"provider_payment_id,omitempty"`
}
