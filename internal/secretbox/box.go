package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrNoKey = errors.New("config encryption key is not set")

// Box — симметричное шифрование текстовых конфигов (XChaCha20-Poly1305).
// Токен: base64(nonce ‖ ciphertext).
type Box struct {
	key []byte
}

// New принимает base64-ключ (std или url алфавит), 32 байта после декода.
func New(encodedKey string) (*Box, error) {
	if encodedKey == "" {
		return nil, ErrNoKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		key, err = base64.URLEncoding.DecodeString(encodedKey)
	}
	if err != nil {
		return nil, errors.New("config encryption key is not valid base64")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("config encryption key must decode to 32 bytes")
	}
	return &Box{key: key}, nil
}

func (b *Box) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt возвращает ok=false на любом битом/чужом токене, никогда не паникует.
func (b *Box) Decrypt(token string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", false
	}
	if len(raw) < aead.NonceSize() {
		return "", false
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}
	return string(pt), true
}
