package ident

import (
	"strings"
	"testing"

	"github.com/mmynk/roommates/internal/apperr"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"canonical uuid", "6f1c2b7e-3d4a-4c5b-9e8f-0a1b2c3d4e5f", false},
		{"generated", NewID(), false},
		{"empty", "", true},
		{"mongo style", "507f1f77bcf86cd799439011", true},
		{"braced", "{6f1c2b7e-3d4a-4c5b-9e8f-0a1b2c3d4e5f}", true},
		{"garbage of right length", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("user_id", tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation kind, got %s", apperr.KindOf(err))
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("name", "  Kitchen Crew  ", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Kitchen Crew" {
		t.Errorf("got %q, want %q", got, "Kitchen Crew")
	}

	if _, err := NormalizeName("name", "   ", 100); !apperr.IsCode(err, apperr.CodeInvalidName) {
		t.Errorf("blank name: expected INVALID_NAME, got %v", err)
	}
	if _, err := NormalizeName("name", strings.Repeat("a", 101), 100); !apperr.IsCode(err, apperr.CodeInvalidName) {
		t.Errorf("long name: expected INVALID_NAME, got %v", err)
	}
	// 100 multi-byte runes is still within the limit.
	if _, err := NormalizeName("name", strings.Repeat("é", 100), 100); err != nil {
		t.Errorf("100 runes: unexpected error %v", err)
	}
}

func TestNewInviteCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewInviteCode()
		if err != nil {
			t.Fatalf("NewInviteCode: %v", err)
		}
		if _, err := NormalizeInviteCode(code); err != nil {
			t.Fatalf("generated code %q does not validate: %v", code, err)
		}
	}
}

func TestNormalizeInviteCode(t *testing.T) {
	got, err := NormalizeInviteCode(" ab1z ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "AB1Z" {
		t.Errorf("got %q, want AB1Z", got)
	}
	for _, bad := range []string{"", "ABC", "ABCDE", "AB-1"} {
		if _, err := NormalizeInviteCode(bad); err == nil {
			t.Errorf("NormalizeInviteCode(%q): expected error", bad)
		}
	}
}
