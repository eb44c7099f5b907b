// Package audit defines identity lifecycle events and the publishers that
// ship them. Emission is always best-effort: a slow or absent event pipeline
// must never fail a resolution or registration.
package audit

import (
	"context"
	"time"
)

// Action identifies the lifecycle transition an event records.
type Action string

const (
	ActionVisitorCreated Action = "identity.visitor_created"
	ActionPromoted       Action = "identity.promoted"
)

// Event is a single identity lifecycle record.
type Event struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	IdentityID  int64     `json:"identity_id"`
	UserHandle  string    `json:"user_handle,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	DeviceLabel string    `json:"device_label,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Publisher ships events to the audit pipeline.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events. Used when no pipeline is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
