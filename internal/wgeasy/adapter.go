package wgeasy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"veil/config"
	"veil/internal/logs"
)

var ErrNotOpen = errors.New("wg-easy adapter is not open")

// UpstreamError — create-вызов провалился и по основному пути, и по
// HTTP-фолбэку. Несёт последний HTTP-статус/тело и первую ошибку
// как диагностический контекст.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("wg-easy upstream failure: status=%d body=%s (primary: %v)", e.Status, e.Body, e.Err)
	}
	return fmt.Sprintf("wg-easy upstream failure: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Adapter — сессия к wg-easy на время одной логической операции.
// Open логинит обёртку, Close делает best-effort logout и всегда
// бросает ссылку; HTTP-транспорт закрывается только если он наш
// (ownsSession), внешний транспорт не трогаем.
type Adapter struct {
	baseURL  string
	password string
	apiKey   string

	http        *http.Client
	ownsSession bool
	wg          *sessionClient
}

// New строит адаптер. session == nil — адаптер владеет собственным
// http.Client (с cookie jar под сессионную куку) и закроет его на Close.
func New(cfg *config.Config, session *http.Client) *Adapter {
	a := &Adapter{
		baseURL:  cfg.WGEasy.URL,
		password: cfg.WGEasy.Password,
		apiKey:   cfg.WGEasy.APIKey,
		http:     session,
	}
	if a.http == nil {
		jar, _ := cookiejar.New(nil)
		a.http = &http.Client{Timeout: 30 * time.Second, Jar: jar}
		a.ownsSession = true
	}
	return a
}

// Open — жёсткое предусловие: без настроенного base URL работать нельзя.
func (a *Adapter) Open(ctx context.Context) error {
	if a.baseURL == "" {
		return errors.New("wg-easy url is not configured")
	}
	a.wg = &sessionClient{baseURL: a.baseURL, password: a.password, http: a.http}
	if err := a.wg.Login(ctx); err != nil {
		// Логин может быть недоступен (например, auth выключен) —
		// фолбэк с Authorization-заголовком всё ещё возможен.
		logs.Logger.Warnf("wg-easy login failed, continuing unauthenticated: %v", err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) {
	if a.wg != nil {
		if err := a.wg.Logout(ctx); err != nil {
			logs.Logger.Debugf("wg-easy logout failed (ignored): %v", err)
		}
	}
	a.wg = nil
	if a.ownsSession {
		a.http.CloseIdleConnections()
	}
}

// authHeader — значение Authorization для фолбэка: API-ключ как есть,
// иначе пароль сессии как есть (без схемы).
func (a *Adapter) authHeader() string {
	if a.apiKey != "" {
		return a.apiKey
	}
	return a.password
}

// clientCreator — общий контракт основной и фолбэк-стратегий.
type clientCreator interface {
	createClient(ctx context.Context, name string) (Client, error)
}

// CreateClient создаёт клиента по цепочке стратегий: обёртка
// (create → list → match по имени), при любой её ошибке — сырой HTTP.
func (a *Adapter) CreateClient(ctx context.Context, name string) (Client, error) {
	if a.wg == nil {
		return Client{}, ErrNotOpen
	}
	chain := []clientCreator{
		&primaryStrategy{wg: a.wg},
		&httpFallbackStrategy{baseURL: a.baseURL, auth: a.authHeader(), http: a.http},
	}
	var firstErr error
	for _, strat := range chain {
		c, err := strat.createClient(ctx, name)
		if err == nil {
			return c, nil
		}
		if firstErr == nil {
			firstErr = err
			logs.Logger.Warnf("wg-easy primary create failed, trying http fallback: %v", err)
			continue
		}
		// фолбэк тоже упал — собираем диагностику
		var up *UpstreamError
		if errors.As(err, &up) {
			up.Err = firstErr
			return Client{}, up
		}
		return Client{}, &UpstreamError{Err: fmt.Errorf("fallback: %w (primary: %v)", err, firstErr)}
	}
	return Client{}, &UpstreamError{Err: firstErr}
}

func (a *Adapter) DeleteClient(ctx context.Context, id string) error {
	if a.wg == nil {
		return ErrNotOpen
	}
	return a.wg.DeleteClient(ctx, id)
}

func (a *Adapter) ClientConfig(ctx context.Context, id string) ([]byte, error) {
	if a.wg == nil {
		return nil, ErrNotOpen
	}
	return a.wg.ClientConfig(ctx, id)
}

/* ───── Стратегии ───── */

type primaryStrategy struct{ wg *sessionClient }

func (s *primaryStrategy) createClient(ctx context.Context, name string) (Client, error) {
	if err := s.wg.CreateClient(ctx, name); err != nil {
		return Client{}, err
	}
	clients, err := s.wg.ListClients(ctx)
	if err != nil {
		return Client{}, err
	}
	for _, c := range clients {
		if c.Name == name {
			return Client{ID: c.id(), PublicKey: c.publicKey()}, nil
		}
	}
	return Client{}, errors.New("created client not found in list")
}
