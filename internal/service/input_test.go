package service

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
)

func TestLoginInputEmailFormat(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"root@example.com", true},
		{"first.last+ops@shop.example.org", true},
		{"plain", false},
		{"missing-domain@", false},
		{"@missing-local.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := LoginInput{Email: tt.email, Password: "secret1"}.Validate()
			if tt.valid && err != nil {
				t.Fatalf("expected %q to be accepted, got %v", tt.email, err)
			}
			if !tt.valid {
				var errs validation.Errors
				if !errors.As(err, &errs) {
					t.Fatalf("expected field errors for %q, got %v", tt.email, err)
				}
				if _, ok := errs["email"]; !ok {
					t.Errorf("expected an email field error, got %v", errs)
				}
			}
		})
	}
}
