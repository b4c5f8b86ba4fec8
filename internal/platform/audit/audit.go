// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package audit carries security events out of the authentication core.

The core only emits. Persistence, retention and querying belong to whatever
consumes the sink (a Kafka topic in production, the process log otherwise).

Emission is fire-and-forget from the caller's perspective: a [Sink] may return
an error, and callers are expected to log it and carry on.
*/
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/warden/internal/platform/ctxutil"
)

// # Actions

// Action names a security-relevant event.
type Action string

const (
	ActionLoginSucceeded       Action = "login_succeeded"
	ActionLoginFailed          Action = "login_failed"
	ActionLoginLocked          Action = "login_locked"
	ActionTwoFactorChallenge   Action = "two_factor_challenge_issued"
	ActionTwoFactorFailed      Action = "two_factor_failed"
	ActionTwoFactorEnabled     Action = "two_factor_enabled"
	ActionTwoFactorDisabled    Action = "two_factor_disabled"
	ActionTokenRefreshed       Action = "token_refreshed"
	ActionLogout               Action = "logout"
	ActionSessionRevoked       Action = "session_revoked"
	ActionSessionsRevokedAll   Action = "sessions_revoked_all"
	ActionImpersonationStarted Action = "impersonation_started"
	ActionImpersonationStopped Action = "impersonation_stopped"
)

// Event is one structured audit record.
type Event struct {
	Action     Action         `json:"action"`
	UserID     string         `json:"userId,omitempty"`
	TenantID   string         `json:"tenantId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Sink accepts audit events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// # Log Sink

// LogSink writes events to the request logger. Used when no broker is configured.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

// Emit logs event at INFO under the "audit" group.
func (LogSink) Emit(ctx context.Context, event Event) error {
	event = stamp(ctx, event)
	ctxutil.GetLogger(ctx).InfoContext(ctx, "audit_event",
		slog.Group("audit",
			slog.String("action", string(event.Action)),
			slog.String("user_id", event.UserID),
			slog.String("tenant_id", event.TenantID),
			slog.Any("metadata", event.Metadata),
			slog.Time("occurred_at", event.OccurredAt),
		),
	)
	return nil
}

// stamp fills the fields every sink expects.
func stamp(ctx context.Context, event Event) Event {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = ctxutil.GetRequestID(ctx)
	}
	return event
}
