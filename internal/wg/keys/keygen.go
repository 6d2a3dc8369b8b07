package keys

import (
	"crypto/rand"
	"encoding/base64"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// KeyPair — base64-пара ключей для клиентского пира.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generate выдаёт пару: приватная половина — 32 случайных байта с
// WireGuard-клампингом, публичная — независимые 32 случайных байта.
// Публичный ключ НЕ выводится из приватного (Curve25519 здесь нет);
// годится только для политик, где настоящий key agreement не нужен.
func Generate() KeyPair {
	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(clamp(random32())),
		PublicKey:  base64.StdEncoding.EncodeToString(random32()),
	}
}

// GeneratePrivate — только приватная половина (когда публичный ключ
// пришёл от клиента).
func GeneratePrivate() string {
	return base64.StdEncoding.EncodeToString(clamp(random32()))
}

// ValidKey — это валидный base64-ключ WireGuard (32 байта)?
func ValidKey(s string) bool {
	_, err := wgtypes.ParseKey(s)
	return err == nil
}

func random32() []byte {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}

// Клампинг по конвенции Curve25519: младшие 3 бита первого байта в ноль,
// старший бит последнего в ноль, бит 6 последнего в единицу.
func clamp(b []byte) []byte {
	b[0] &= 248
	b[31] = (b[31] & 127) | 64
	return b
}
