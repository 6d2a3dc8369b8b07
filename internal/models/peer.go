package models

import (
	"time"

	"gorm.io/datatypes"
)

// VpnPeer — клиентский WireGuard-пир пользователя.
// Приватный ключ хранится в строке, но наружу отдаётся ровно один раз —
// в ответе на создание; read/list обязаны его вычищать.
type VpnPeer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	UserID       uint   `gorm:"index;not null" json:"user_id"`
	WGPrivateKey string `gorm:"size:512;not null" json:"-"`
	WGPublicKey  string `gorm:"uniqueIndex;size:255;not null" json:"wg_public_key"`
	WGClientID   string `gorm:"size:255" json:"-"` // id во внешнем control-plane (wg-easy)
	WGIP         string `gorm:"uniqueIndex;size:64;not null" json:"wg_ip"`
	AllowedIPs   string `gorm:"size:512" json:"allowed_ips,omitempty"`

	// Шифротекст полного wg-quick конфига (см. internal/secretbox)
	EncryptedConfig string `gorm:"type:text" json:"-"`

	// Метаданные, извлечённые из конфига control-plane (dns, endpoint и т.п.)
	Metadata datatypes.JSONMap `json:"-"`

	Active bool `gorm:"default:true" json:"active"`
}
