// Package messaging publishes security events to the message bus.
package messaging

import (
	"context"
	"strings"
)

// Publisher sends fire-and-forget messages to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// DefaultSubjectPrefix roots every subject this service publishes.
const DefaultSubjectPrefix = "adminauth"

// AuditSubject returns the subject for an audit action.
// Example: adminauth.audit.login_failed
func AuditSubject(prefix, action string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".audit." + strings.ToLower(action)
}

// NoopPublisher drops every message.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, data []byte) error { return nil }

func (NoopPublisher) Close() error { return nil }
