package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	dErrors "visitid/pkg/domain-errors"
)

// phonePattern matches the mobile number format accepted at registration.
var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// RegistrationAttrs carries the attributes supplied when promoting a
// visitor to a registered account. The resolver treats every field as an
// optional string and only enforces uniqueness; full format validation
// happens at the transport boundary via Validate.
type RegistrationAttrs struct {
	UserHandle       string `json:"user_handle"`
	DisplayName      string `json:"display_name"`
	Phone            string `json:"phone"`
	CredentialSecret string `json:"credential_secret"`
}

// Normalize trims surrounding whitespace from all attributes.
func (a *RegistrationAttrs) Normalize() {
	a.UserHandle = strings.TrimSpace(a.UserHandle)
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.CredentialSecret = strings.TrimSpace(a.CredentialSecret)
}

// Validate enforces the registration input contract. Display names count
// runes, not bytes, so multi-byte names get the documented 2-10 range.
func (a RegistrationAttrs) Validate() error {
	if a.UserHandle == "" {
		return dErrors.New(dErrors.CodeValidation, "user handle is required")
	}
	if len(a.UserHandle) < 4 || len(a.UserHandle) > 20 {
		return dErrors.New(dErrors.CodeValidation, "user handle must be 4-20 characters")
	}
	if a.DisplayName == "" {
		return dErrors.New(dErrors.CodeValidation, "display name is required")
	}
	if n := utf8.RuneCountInString(a.DisplayName); n < 2 || n > 10 {
		return dErrors.New(dErrors.CodeValidation, "display name must be 2-10 characters")
	}
	if a.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	if !phonePattern.MatchString(a.Phone) {
		return dErrors.New(dErrors.CodeValidation, "phone format is invalid")
	}
	if a.CredentialSecret == "" {
		return dErrors.New(dErrors.CodeValidation, "credential secret is required")
	}
	if len(a.CredentialSecret) < 8 || len(a.CredentialSecret) > 20 {
		return dErrors.New(dErrors.CodeValidation, "credential secret must be 8-20 characters")
	}
	return nil
}
