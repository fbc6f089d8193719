package validation

import "testing"

func TestClampQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		want     int
	}{
		{name: "zero", quantity: 0, want: 1},
		{name: "negative", quantity: -3, want: 1},
		{name: "one", quantity: 1, want: 1},
		{name: "many", quantity: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampQuantity(tt.quantity); got != tt.want {
				t.Fatalf("ClampQuantity(%d) = %d, want %d", tt.quantity, got, tt.want)
			}
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{name: "simple", email: "ann@example.com", valid: true},
		{name: "subdomain", email: "ops@mail.shop.example", valid: true},
		{name: "empty", email: "", valid: false},
		{name: "no at", email: "ann.example.com", valid: false},
		{name: "no domain dot", email: "ann@localhost", valid: false},
		{name: "display name", email: "Ann <ann@example.com>", valid: false},
		{name: "surrounding spaces", email: " ann@example.com ", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.valid {
				t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{name: "ok", password: "secret1", valid: true},
		{name: "unicode", password: "пароль", valid: true},
		{name: "too short", password: "abc", valid: false},
		{name: "contains space", password: "sec ret1", valid: false},
		{name: "empty", password: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPassword(tt.password); got != tt.valid {
				t.Fatalf("IsValidPassword(%q) = %v, want %v", tt.password, got, tt.valid)
			}
		})
	}
}
