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

// httpFallbackStrategy — сырой HTTP в обход обёртки: POST на создание
// клиента и GET списка, оба с Authorization = ключ/пароль без схемы.
type httpFallbackStrategy struct {
	baseURL string
	auth    string
	http    *http.Client
}

func (s *httpFallbackStrategy) url(path string) string {
	return strings.TrimRight(s.baseURL, "/") + path
}

func (s *httpFallbackStrategy) createClient(ctx context.Context, name string) (Client, error) {
	raw, _ := json.Marshal(map[string]string{"name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("/api/wireguard/client"), bytes.NewReader(raw))
	if err != nil {
		return Client{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.auth)

	resp, err := s.http.Do(req)
	if err != nil {
		return Client{}, err
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Client{}, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return s.findByName(ctx, name)
}

func (s *httpFallbackStrategy) findByName(ctx context.Context, name string) (Client, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url("/api/wireguard/client"), nil)
	if err != nil {
		return Client{}, err
	}
	req.Header.Set("Authorization", s.auth)

	resp, err := s.http.Do(req)
	if err != nil {
		return Client{}, err
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Client{}, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var clients []clientInfo
	if err := json.Unmarshal(body, &clients); err != nil {
		return Client{}, fmt.Errorf("fallback list decode: %w", err)
	}
	for _, c := range clients {
		if c.Name == name {
			return Client{ID: c.id(), PublicKey: c.publicKey()}, nil
		}
	}
	return Client{}, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
}
