package pix

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// KeyType is the kind of a DICT key ("chave PIX").
type KeyType string

const (
	KeyCPF    KeyType = "cpf"
	KeyCNPJ   KeyType = "cnpj"
	KeyEmail  KeyType = "email"
	KeyPhone  KeyType = "phone"
	KeyRandom KeyType = "random"
)

var (
	ErrKeyType = errors.New("unknown pix key type")
	ErrKey     = errors.New("pix key does not match its type")

	nonDigits = regexp.MustCompile(`\D`)
	e164BR    = regexp.MustCompile(`^\+55\d{10,11}$`)
)

func (k KeyType) Valid() bool {
	switch k {
	case KeyCPF, KeyCNPJ, KeyEmail, KeyPhone, KeyRandom:
		return true
	}
	return false
}

// NormalizeKey checks key against its type and returns the form used in
// payloads: digits only for CPF/CNPJ, +55 prefixed phones, lower-case
// emails and random keys.
func NormalizeKey(kind KeyType, key string) (string, error) {
	if !kind.Valid() {
		return "", ErrKeyType
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingKey
	}

	switch kind {
	case KeyCPF, KeyCNPJ:
		digits := nonDigits.ReplaceAllString(key, "")
		want := 11
		if kind == KeyCNPJ {
			want = 14
		}
		if len(digits) != want {
			return "", ErrKey
		}
		return digits, nil
	case KeyEmail:
		addr, err := mail.ParseAddress(key)
		if err != nil || addr.Address != key {
			return "", ErrKey
		}
		return strings.ToLower(key), nil
	case KeyPhone:
		digits := nonDigits.ReplaceAllString(key, "")
		if !strings.HasPrefix(digits, "55") || len(digits) < 12 {
			digits = "55" + digits
		}
		phone := "+" + digits
		if !e164BR.MatchString(phone) {
			return "", ErrKey
		}
		return phone, nil
	default:
		id, err := uuid.Parse(key)
		if err != nil {
			return "", ErrKey
		}
		return id.String(), nil
	}
}
