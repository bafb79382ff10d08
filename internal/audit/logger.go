// Package audit records signed, append-only security events.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/adminauth/internal/logging"
	"github.com/telhawk-systems/adminauth/internal/messaging"
	"github.com/telhawk-systems/adminauth/internal/models"
)

// Store persists audit events.
type Store interface {
	AppendAudit(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error)
}

const DefaultRecentLimit = 50

type Logger struct {
	secretKey     []byte
	store         Store
	publisher     messaging.Publisher
	subjectPrefix string
	log           *logging.Logger
	now           func() time.Time
}

func NewLogger(secretKey string, store Store) *Logger {
	return &Logger{
		secretKey: []byte(secretKey),
		store:     store,
		log:       logging.Default(),
		now:       time.Now,
	}
}

// WithPublisher forwards every stored event to the bus under prefix.
func (l *Logger) WithPublisher(p messaging.Publisher, prefix string) *Logger {
	l.publisher = p
	l.subjectPrefix = prefix
	return l
}

func (l *Logger) WithLogger(log *logging.Logger) *Logger {
	l.log = log
	return l
}

func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Append assigns an ID, timestamp and signature to event and stores it
// synchronously. A non-nil error means the record was not written.
func (l *Logger) Append(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate audit id: %w", err)
		}
		event.ID = id.String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	// Stored timestamps keep microseconds only; sign what will be read back.
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)
	event.Signature = l.sign(event)

	if err := l.store.AppendAudit(ctx, event); err != nil {
		l.log.WithContext(ctx).Error("Failed to write audit event",
			logging.Action(string(event.Action)),
			logging.Error(err),
		)
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	if l.publisher != nil {
		l.forward(event)
	}
	return nil
}

// forward publishes asynchronously so the bus never blocks authentication.
func (l *Logger) forward(event *models.AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		l.log.Warn("Failed to encode audit event", logging.Error(err))
		return
	}
	subject := messaging.AuditSubject(l.subjectPrefix, string(event.Action))
	go func() {
		if err := l.publisher.Publish(context.Background(), subject, data); err != nil {
			l.log.Warn("Failed to publish audit event",
				logging.Action(string(event.Action)),
				logging.Error(err),
			)
		}
	}()
}

// Recent returns the newest events, optionally for one user.
func (l *Logger) Recent(ctx context.Context, userID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	events, err := l.store.ListAuditEvents(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

func (l *Logger) sign(event *models.AuditEvent) string {
	h := hmac.New(sha256.New, l.secretKey)
	for _, part := range []string{
		event.ID,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		models.StringValue(event.UserID),
		models.StringValue(event.ActorID),
		string(event.Action),
		event.Resource,
		event.IPAddress,
		event.UserAgent,
		strconv.FormatBool(event.Success),
		models.StringValue(event.ErrorMessage),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether event carries a valid signature for its fields.
func (l *Logger) Verify(event *models.AuditEvent) bool {
	expected := l.sign(event)
	return hmac.Equal([]byte(expected), []byte(event.Signature))
}
