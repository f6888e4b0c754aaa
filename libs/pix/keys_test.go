package pix

import (
	"errors"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		kind KeyType
		in   string
		want string
	}{
		{KeyCPF, "123.456.789-09", "12345678909"},
		{KeyCNPJ, "12.345.678/0001-95", "12345678000195"},
		{KeyEmail, "Ze@Barbearia.com", "ze@barbearia.com"},
		{KeyPhone, "(11) 98765-4321", "+5511987654321"},
		{KeyPhone, "+55 11 98765-4321", "+5511987654321"},
		{KeyRandom, "3F2504E0-4F89-11D3-9A0C-0305E82C3301", "3f2504e0-4f89-11d3-9a0c-0305e82c3301"},
	}
	for _, tc := range cases {
		got, err := NormalizeKey(tc.kind, tc.in)
		if err != nil {
			t.Fatalf("%s %q: %v", tc.kind, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s %q: got %q want %q", tc.kind, tc.in, got, tc.want)
		}
	}
}

func TestNormalizeKeyRejects(t *testing.T) {
	if _, err := NormalizeKey("iban", "x"); !errors.Is(err, ErrKeyType) {
		t.Fatalf("expected ErrKeyType, got %v", err)
	}
	if _, err := NormalizeKey(KeyCPF, "  "); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := NormalizeKey(KeyCPF, "1234"); !errors.Is(err, ErrKey) {
		t.Fatalf("expected ErrKey for short cpf, got %v", err)
	}
	if _, err := NormalizeKey(KeyEmail, "not-an-email"); !errors.Is(err, ErrKey) {
		t.Fatalf("expected ErrKey for email, got %v", err)
	}
	if _, err := NormalizeKey(KeyRandom, "abc"); !errors.Is(err, ErrKey) {
		t.Fatalf("expected ErrKey for random, got %v", err)
	}
}
