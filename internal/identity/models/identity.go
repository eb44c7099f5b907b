package models

import (
	"time"
)

// Role is the access tier of an identity record.
type Role string

const (
	RoleVisitor Role = "VISITOR"
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
)

// CanPromote reports whether the role may advance to USER. Promotion is
// one-way: USER and ADMIN never revert to VISITOR, and ADMIN is never
// lowered to USER.
func (r Role) CanPromote() bool {
	return r == RoleVisitor
}

// Account status flags. Records are created active; deactivation is an
// administrative concern handled outside this service.
const (
	StatusInactive = 0
	StatusActive   = 1
)

// Identity is the single entity tracked by the service: a pseudonymous
// visitor that may later be promoted to a registered account.
//
// Invariants:
//   - VisitorToken is set at creation, unique, and never reassigned;
//     promotion mutates the same row rather than creating a new one
//   - UserHandle and Phone are unique when non-empty
//   - Role only advances VISITOR -> USER
//   - CreatedAt is immutable after construction
type Identity struct {
	ID               int64     `json:"id"`
	VisitorToken     string    `json:"visitor_token"`
	UserHandle       string    `json:"user_handle,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	CredentialSecret string    `json:"-"`
	Role             Role      `json:"role"`
	Status           int       `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	LastIP           string    `json:"last_ip,omitempty"`
}

// NewVisitor constructs a fresh anonymous record bound to the given token.
func NewVisitor(token, clientIP string, now time.Time) *Identity {
	return &Identity{
		VisitorToken: token,
		Role:         RoleVisitor,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
		LastIP:       clientIP,
	}
}

// Touch refreshes the resolving-access fields. CreatedAt is left alone.
func (i *Identity) Touch(clientIP string, now time.Time) {
	i.UpdatedAt = now
	i.LastSeenAt = now
	if clientIP != "" {
		i.LastIP = clientIP
	}
}

// ApplyRegistration fills in registration attributes on an existing record.
// Empty supplied fields never clear stored values (partial update), and the
// role advances to USER only from VISITOR.
func (i *Identity) ApplyRegistration(attrs RegistrationAttrs, clientIP string, now time.Time) {
	if attrs.UserHandle != "" {
		i.UserHandle = attrs.UserHandle
	}
	if attrs.DisplayName != "" {
		i.DisplayName = attrs.DisplayName
	}
	if attrs.Phone != "" {
		i.Phone = attrs.Phone
	}
	if attrs.CredentialSecret != "" {
		i.CredentialSecret = attrs.CredentialSecret
	}
	if i.Role.CanPromote() {
		i.Role = RoleUser
	}
	i.Touch(clientIP, now)
}

// NewRegistered constructs a record for direct registration: a visitor token
// was presented but no row exists for it yet.
func NewRegistered(token string, attrs RegistrationAttrs, clientIP string, now time.Time) *Identity {
	return &Identity{
		VisitorToken:     token,
		UserHandle:       attrs.UserHandle,
		DisplayName:      attrs.DisplayName,
		Phone:            attrs.Phone,
		CredentialSecret: attrs.CredentialSecret,
		Role:             RoleUser,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastSeenAt:       now,
		LastIP:           clientIP,
	}
}
