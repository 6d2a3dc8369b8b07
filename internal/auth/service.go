package auth

import (
	"context"
	"errors"
	"strings"

	"veil/config"
	"veil/internal/models"
	"veil/internal/repo"
)

var (
	ErrBadCredentials = errors.New("bad credentials")
	ErrEmailTaken     = errors.New("email already registered")
)

type Service struct {
	users   *repo.UserStore
	tariffs *repo.TariffStore
	cfg     *config.Config
}

func New(users *repo.UserStore, tariffs *repo.TariffStore, cfg *config.Config) *Service {
	return &Service{users: users, tariffs: tariffs, cfg: cfg}
}

func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u := &models.User{
		Email:        email,
		PasswordHash: HashPassword(password),
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrBadCredentials
		}
		return "", err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return "", ErrBadCredentials
	}
	return GenerateToken(s.cfg.Auth.JWTSecret, u.ID, u.IsAdmin, s.cfg.Auth.TokenTTL)
}

func (s *Service) CurrentUser(ctx context.Context, p Principal) (*models.User, error) {
	return s.users.GetByID(ctx, p.UserID)
}

func (s *Service) Subscribe(ctx context.Context, userID, tariffID uint) (*models.UserTariff, error) {
	t, err := s.tariffs.GetByID(ctx, tariffID)
	if err != nil {
		return nil, err
	}
	return s.users.Subscribe(ctx, userID, t)
}

// HasActiveSubscription — предикат для оркестратора пиров.
func (s *Service) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	return s.users.HasActiveSubscription(ctx, userID)
}

func (s *Service) PromoteAdmin(ctx context.Context, userID uint) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.users.SetAdmin(ctx, userID, true)
}
