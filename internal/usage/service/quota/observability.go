package quota

import (
	"context"
	"time"

	"chalk/internal/audit"
	"chalk/internal/usage/device"
	"chalk/internal/usage/models"
	"chalk/pkg/requestcontext"
)

// Observability helpers: each engine outcome lands once in the log, once
// in the metrics, and once on the audit trail.

func (s *Service) usageRecorded(ctx context.Context, identity models.Identity, action models.Action, tier models.Tier, now time.Time) {
	if s.metrics != nil {
		s.metrics.RecordUsage(action.String(), tier.String())
	}
	s.logAudit(ctx, "usage recorded",
		"identity", identity.Key(),
		"action", action.String(),
		"tier", tier.String(),
	)

	event := s.eventFor(ctx, audit.EventUsageRecorded, identity, now)
	event.Action = action.String()
	event.Tier = tier.String()
	event.Allowed = true
	s.emit(ctx, event)
}

func (s *Service) usageDenied(ctx context.Context, identity models.Identity, action models.Action, tier models.Tier, denial *models.Denial, now time.Time) {
	window, reason := denialReason(denial)
	if s.metrics != nil {
		s.metrics.RecordDenial(action.String(), tier.String(), window)
	}
	s.logAudit(ctx, "usage denied",
		"identity", identity.Key(),
		"action", action.String(),
		"tier", tier.String(),
		"window", window,
	)

	event := s.eventFor(ctx, audit.EventUsageDenied, identity, now)
	event.Action = action.String()
	event.Tier = tier.String()
	event.Reason = reason
	s.emit(ctx, event)
}

func (s *Service) usageReset(ctx context.Context, identity models.Identity, now time.Time) {
	if s.metrics != nil {
		s.metrics.RecordReset()
	}
	s.logAudit(ctx, "usage reset", "identity", identity.Key())

	event := s.eventFor(ctx, audit.EventUsageReset, identity, now)
	event.Allowed = true
	event.Reason = "admin reset"
	s.emit(ctx, event)
}

func (s *Service) tierUpdated(ctx context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus, now time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTierUpdate(tier.String())
	}
	s.logAudit(ctx, "tier updated",
		"user_id", userID,
		"tier", tier.String(),
		"status", status.String(),
	)

	event := audit.Event{
		Type:       audit.EventTierUpdated,
		OccurredAt: now,
		UserID:     &userID,
		Tier:       tier.String(),
		Allowed:    true,
		Reason:     "status " + status.String(),
		RequestID:  requestcontext.RequestID(ctx),
	}
	s.emit(ctx, event)
}

func (s *Service) storeError(ctx context.Context, operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreError(operation)
	}
	s.logger.ErrorContext(ctx, "store operation failed", "operation", operation, "error", err)
}

func (s *Service) logAudit(ctx context.Context, msg string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, msg, append(attrs, "log_type", "audit")...)
}

// eventFor builds the base audit event for a quota action. Authenticated
// events keep the client address as forensic context; anonymous events
// carry the tracked address itself.
func (s *Service) eventFor(ctx context.Context, eventType audit.EventType, identity models.Identity, now time.Time) audit.Event {
	event := audit.Event{
		Type:       eventType,
		OccurredAt: now,
		RequestID:  requestcontext.RequestID(ctx),
	}
	if identity.IsAuthenticated() {
		uid := *identity.UserID
		event.UserID = &uid
		event.IPAddress = requestcontext.ClientIP(ctx)
	} else {
		event.IPAddress = identity.IP
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		event.Device = device.Summary(ua)
	}
	return event
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "type", event.Type, "error", err)
	}
}

func denialReason(denial *models.Denial) (window, reason string) {
	if denial == nil {
		return "", "limit reached"
	}
	return denial.Window.String(), denial.Window.String() + " limit reached"
}
