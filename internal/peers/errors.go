package peers

import "errors"

var (
	// ErrNotAllowed — не владелец и не админ.
	ErrNotAllowed = errors.New("not allowed")
	// ErrSubscriptionRequired — self-service без активной подписки.
	ErrSubscriptionRequired = errors.New("active subscription required")
	// ErrNotFound — пира нет (или нет сохранённого конфига).
	ErrNotFound = errors.New("peer not found")
	// ErrConflict — нарушение уникальности public key / адреса.
	ErrConflict = errors.New("duplicate public key or address")
	// ErrDecrypt — сохранённый конфиг не расшифровался (битый токен/ключ).
	ErrDecrypt = errors.New("config decryption failed")
)

// ValidationError — ошибка входных данных, уходит клиенту как 400.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
