// Package ident validates record identifiers, normalises names and generates
// invite codes.
package ident

import (
	crand "crypto/rand"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/mmynk/roommates/internal/apperr"
)

const (
	// InviteCodeLength is the exact length of a group invite code.
	InviteCodeLength = 4

	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewID returns a new random record identifier.
func NewID() string {
	return uuid.New().String()
}

// ValidateID checks that id is a canonical UUID string. field names the
// argument in the returned error.
func ValidateID(field, id string) error {
	if len(id) != 36 {
		return invalidID(field, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalidID(field, id)
	}
	return nil
}

func invalidID(field, id string) error {
	return apperr.WithMetadata(apperr.CodeInvalidID,
		fmt.Sprintf("%s is not a valid identifier", field),
		map[string]string{"field": field, "value": id},
	)
}

// NormalizeName trims and NFC-normalises a display name and checks that it
// has between 1 and maxLen runes.
func NormalizeName(field, name string, maxLen int) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", apperr.WithMetadata(apperr.CodeInvalidName,
			fmt.Sprintf("%s is required", field),
			map[string]string{"field": field},
		)
	}
	if n > maxLen {
		return "", apperr.WithMetadata(apperr.CodeInvalidName,
			fmt.Sprintf("%s must be at most %d characters", field, maxLen),
			map[string]string{"field": field, "length": fmt.Sprint(n), "max_length": fmt.Sprint(maxLen)},
		)
	}
	return name, nil
}

// NewInviteCode returns a random code of InviteCodeLength uppercase
// alphanumerics.
func NewInviteCode() (string, error) {
	var b [InviteCodeLength]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random invite code: %w", err)
	}
	code := make([]byte, InviteCodeLength)
	for i, v := range b {
		code[i] = inviteAlphabet[int(v)%len(inviteAlphabet)]
	}
	return string(code), nil
}

// NormalizeInviteCode upper-cases code and checks its shape.
func NormalizeInviteCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != InviteCodeLength {
		return "", invalidCode(code)
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(inviteAlphabet, rune(code[i])) {
			return "", invalidCode(code)
		}
	}
	return code, nil
}

func invalidCode(code string) error {
	return apperr.WithMetadata(apperr.CodeInvalidArgument,
		fmt.Sprintf("invite code must be %d letters or digits", InviteCodeLength),
		map[string]string{"field": "invite_code", "value": code},
	)
}
