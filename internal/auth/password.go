package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

const saltLen = 16

// HashPassword — argon2id; соль хранится в начале блоба.
func HashPassword(password string) []byte {
	salt := make([]byte, saltLen)
	_, _ = rand.Read(salt)
	h := argon2.IDKey([]byte(password), salt, 1, 64*1024, 1, 32)
	return append(salt, h...)
}

func VerifyPassword(stored []byte, candidate string) bool {
	if len(stored) != saltLen+32 {
		return false
	}
	salt := stored[:saltLen]
	h := argon2.IDKey([]byte(candidate), salt, 1, 64*1024, 1, 32)
	return subtle.ConstantTimeCompare(h, stored[saltLen:]) == 1
}
