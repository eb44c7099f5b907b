package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "visitid/pkg/domain-errors"
)

func validAttrs() RegistrationAttrs {
	return RegistrationAttrs{
		UserHandle:       "bob01",
		DisplayName:      "Bob",
		Phone:            "13800000000",
		CredentialSecret: "pw12345678",
	}
}

func TestRegistrationAttrsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegistrationAttrs)
		valid  bool
	}{
		{"valid", func(a *RegistrationAttrs) {}, true},
		{"handle missing", func(a *RegistrationAttrs) { a.UserHandle = "" }, false},
		{"handle too short", func(a *RegistrationAttrs) { a.UserHandle = "ab" }, false},
		{"handle too long", func(a *RegistrationAttrs) { a.UserHandle = strings.Repeat("x", 21) }, false},
		{"display name missing", func(a *RegistrationAttrs) { a.DisplayName = "" }, false},
		{"display name single rune", func(a *RegistrationAttrs) { a.DisplayName = "B" }, false},
		{"display name multibyte counts runes", func(a *RegistrationAttrs) { a.DisplayName = "鲍勃" }, true},
		{"phone missing", func(a *RegistrationAttrs) { a.Phone = "" }, false},
		{"phone wrong prefix", func(a *RegistrationAttrs) { a.Phone = "12800000000" }, false},
		{"phone too short", func(a *RegistrationAttrs) { a.Phone = "1380000000" }, false},
		{"secret too short", func(a *RegistrationAttrs) { a.CredentialSecret = "pw12345" }, false},
		{"secret too long", func(a *RegistrationAttrs) { a.CredentialSecret = strings.Repeat("p", 21) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := validAttrs()
			tt.mutate(&attrs)
			err := attrs.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	attrs := RegistrationAttrs{UserHandle: " bob01 ", DisplayName: "\tBob\n", Phone: " 13800000000", CredentialSecret: "pw12345678 "}
	attrs.Normalize()
	assert.Equal(t, validAttrs(), attrs)
}

func TestApplyRegistrationPartialUpdate(t *testing.T) {
	now := time.Now()
	rec := NewVisitor("tok-1", "192.0.2.1", now)
	rec.ApplyRegistration(validAttrs(), "192.0.2.2", now.Add(time.Minute))

	assert.Equal(t, RoleUser, rec.Role)
	assert.Equal(t, "tok-1", rec.VisitorToken)
	assert.Equal(t, "13800000000", rec.Phone)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, "192.0.2.2", rec.LastIP)

	// Empty supplied fields leave the stored values intact.
	rec.ApplyRegistration(RegistrationAttrs{DisplayName: "Bobby"}, "", now.Add(2*time.Minute))
	assert.Equal(t, "13800000000", rec.Phone)
	assert.Equal(t, "bob01", rec.UserHandle)
	assert.Equal(t, "Bobby", rec.DisplayName)
	assert.Equal(t, "192.0.2.2", rec.LastIP)
}

func TestRoleNeverReverts(t *testing.T) {
	now := time.Now()
	rec := NewVisitor("tok-2", "", now)
	rec.Role = RoleAdmin
	rec.ApplyRegistration(validAttrs(), "", now)
	assert.Equal(t, RoleAdmin, rec.Role)
}
