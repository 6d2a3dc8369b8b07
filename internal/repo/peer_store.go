package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"veil/internal/models"
)

type PeerStore struct{ db *gorm.DB }

func NewPeerStore(db *gorm.DB) *PeerStore { return &PeerStore{db: db} }

// Create — первый коммит оркестратора. Коллизии wg_public_key/wg_ip
// режутся уникальными индексами; никакой блокировки сверху нет.
func (s *PeerStore) Create(ctx context.Context, p *models.VpnPeer) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *PeerStore) GetByID(ctx context.Context, id uint) (*models.VpnPeer, error) {
	var p models.VpnPeer
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, err
}

// List — все пиры (userID=0) либо пиры одного пользователя.
func (s *PeerStore) List(ctx context.Context, userID uint, offset, limit int) ([]models.VpnPeer, error) {
	q := s.db.WithContext(ctx).Model(&models.VpnPeer{}).Order("id asc")
	if userID != 0 {
		q = q.Where("user_id=?", userID)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var out []models.VpnPeer
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// LatestActiveForUser — самый свежий активный пир (по created_at, затем id).
func (s *PeerStore) LatestActiveForUser(ctx context.Context, userID uint) (*models.VpnPeer, error) {
	var p models.VpnPeer
	err := s.db.WithContext(ctx).
		Where("user_id=? AND active=?", userID, true).
		Order("created_at desc, id desc").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, err
}

// UpdateKeys — обновление public key / адреса / allowed_ips (без перегенерации).
func (s *PeerStore) UpdateKeys(ctx context.Context, id uint, publicKey, ip, allowedIPs string) (*models.VpnPeer, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.WGPublicKey = publicKey
	p.WGIP = ip
	p.AllowedIPs = allowedIPs
	p.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// AttachConfig — второй, отдельный коммит: падение здесь не откатывает Create.
func (s *PeerStore) AttachConfig(ctx context.Context, id uint, encrypted string) error {
	return s.db.WithContext(ctx).Model(&models.VpnPeer{}).Where("id=?", id).
		Update("encrypted_config", encrypted).Error
}

func (s *PeerStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.VpnPeer{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
