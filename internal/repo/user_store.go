package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"veil/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

type UserStore struct{ db *gorm.DB }

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email=?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (s *UserStore) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (s *UserStore) SetAdmin(ctx context.Context, id uint, admin bool) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id=?", id).
		Update("is_admin", admin).Error
}

// -------- Подписки --------

func (s *UserStore) Subscribe(ctx context.Context, userID uint, t *models.Tariff) (*models.UserTariff, error) {
	now := time.Now().UTC()
	days := t.DurationDays
	if days <= 0 {
		days = 30
	}
	ut := models.UserTariff{
		UserID:    userID,
		TariffID:  t.ID,
		StartedAt: now,
		ExpiresAt: now.AddDate(0, 0, days),
	}
	if err := s.db.WithContext(ctx).Create(&ut).Error; err != nil {
		return nil, err
	}
	return &ut, nil
}

// HasActiveSubscription — есть ли у пользователя неистёкшая подписка.
func (s *UserStore) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserTariff{}).
		Where("user_id=? AND expires_at > ?", userID, time.Now().UTC()).
		Count(&n).Error
	return n > 0, err
}
