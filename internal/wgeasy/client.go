package wgeasy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client — нормализованный клиент control-plane.
type Client struct {
	ID        string
	PublicKey string
}

// clientInfo — сырой элемент списка /api/wireguard/client.
// Разные версии wg-easy отдают id как "id" либо "uid",
// публичный ключ как "publicKey" либо "public_key".
type clientInfo struct {
	ID         string `json:"id"`
	UID        string `json:"uid"`
	Name       string `json:"name"`
	PublicKey  string `json:"publicKey"`
	PublicKey2 string `json:"public_key"`
}

func (c clientInfo) id() string {
	if c.ID != "" {
		return c.ID
	}
	return c.UID
}

func (c clientInfo) publicKey() string {
	if c.PublicKey != "" {
		return c.PublicKey
	}
	return c.PublicKey2
}

// sessionClient — обёртка над сессионным API wg-easy (кука после логина).
type sessionClient struct {
	baseURL  string
	password string
	http     *http.Client
}

func (s *sessionClient) url(path string) string {
	return strings.TrimRight(s.baseURL, "/") + path
}

func (s *sessionClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url(path), rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func (s *sessionClient) Login(ctx context.Context) error {
	code, body, err := s.do(ctx, http.MethodPost, "/api/session", map[string]string{"password": s.password})
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("wg-easy login failed: status=%d body=%s", code, body)
	}
	return nil
}

func (s *sessionClient) Logout(ctx context.Context) error {
	_, _, err := s.do(ctx, http.MethodDelete, "/api/session", nil)
	return err
}

func (s *sessionClient) CreateClient(ctx context.Context, name string) error {
	code, body, err := s.do(ctx, http.MethodPost, "/api/wireguard/client", map[string]string{"name": name})
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("wg-easy create client: status=%d body=%s", code, body)
	}
	return nil
}

func (s *sessionClient) ListClients(ctx context.Context) ([]clientInfo, error) {
	code, body, err := s.do(ctx, http.MethodGet, "/api/wireguard/client", nil)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("wg-easy list clients: status=%d body=%s", code, body)
	}
	var out []clientInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sessionClient) DeleteClient(ctx context.Context, id string) error {
	code, body, err := s.do(ctx, http.MethodDelete, "/api/wireguard/client/"+id, nil)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("wg-easy delete client: status=%d body=%s", code, body)
	}
	return nil
}

func (s *sessionClient) ClientConfig(ctx context.Context, id string) ([]byte, error) {
	code, body, err := s.do(ctx, http.MethodGet, "/api/wireguard/client/"+id+"/configuration", nil)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("wg-easy client config: status=%d body=%s", code, body)
	}
	return body, nil
}
