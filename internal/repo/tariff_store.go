package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"veil/internal/models"
)

type TariffStore struct{ db *gorm.DB }

func NewTariffStore(db *gorm.DB) *TariffStore { return &TariffStore{db: db} }

func (s *TariffStore) Create(ctx context.Context, t *models.Tariff) error {
	t.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *TariffStore) List(ctx context.Context) ([]models.Tariff, error) {
	var out []models.Tariff
	err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}

func (s *TariffStore) GetByID(ctx context.Context, id uint) (*models.Tariff, error) {
	var t models.Tariff
	err := s.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &t, err
}
