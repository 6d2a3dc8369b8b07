package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"veil/internal/models"
)

type PaymentStore struct{ db *gorm.DB }

func NewPaymentStore(db *gorm.DB) *PaymentStore { return &PaymentStore{db: db} }

func (s *PaymentStore) Create(ctx context.Context, p *models.Payment) error {
	p.CreatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *PaymentStore) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, err
}

// List — все платежи (userID=0) либо платежи одного пользователя.
func (s *PaymentStore) List(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, error) {
	q := s.db.WithContext(ctx).Model(&models.Payment{}).Order("id desc")
	if userID != 0 {
		q = q.Where("user_id=?", userID)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var out []models.Payment
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (s *PaymentStore) SetStatus(ctx context.Context, id uint, status string) error {
	return s.db.WithContext(ctx).Model(&models.Payment{}).Where("id=?", id).
		Update("status", status).Error
}
