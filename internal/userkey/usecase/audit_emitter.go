package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/fieldcrypt/internal/metrics"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// auditEmitter appends one signed entry per key event. A failed write is logged and
// counted but never returned: the audited operation has already happened.
type auditEmitter struct {
	repo    AuditRepository
	signer  AuditSigner
	logger  *slog.Logger
	metrics metrics.BusinessMetrics
	timeout time.Duration
}

func (a *auditEmitter) emit(
	ctx context.Context,
	userID string,
	op userkeyDomain.AuditOperation,
	details map[string]any,
) {
	entry := &userkeyDomain.AuditEntry{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    userID,
		Operation: op,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Details:   details,
	}
	if actor, ok := userkeyDomain.ActorFromContext(ctx); ok {
		if actor.PerformedBy != "" {
			entry.PerformedBy = &actor.PerformedBy
		}
		if actor.SourceAddress != "" {
			entry.SourceAddress = &actor.SourceAddress
		}
	}

	if err := a.write(ctx, entry); err != nil {
		a.logger.Error("audit write failed",
			slog.String("user_id", userID),
			slog.String("operation", string(op)),
			slog.Any("error", err),
		)
		a.metrics.RecordOperation(ctx, "audit", "audit_write", metrics.StatusError)
		return
	}
	a.metrics.RecordOperation(ctx, "audit", "audit_write", metrics.StatusSuccess)
}

func (a *auditEmitter) write(ctx context.Context, entry *userkeyDomain.AuditEntry) error {
	if a.signer != nil {
		signature, err := a.signer.Sign(entry)
		if err != nil {
			return fmt.Errorf("%w: %w", userkeyDomain.ErrAuditWriteFailure, err)
		}
		entry.Signature = signature
	}

	// Detection events must be recorded even when the caller has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.repo.Create(writeCtx, entry); err != nil {
		return fmt.Errorf("%w: %w", userkeyDomain.ErrAuditWriteFailure, err)
	}
	return nil
}

func newAuditEmitter(
	repo AuditRepository,
	signer AuditSigner,
	logger *slog.Logger,
	m metrics.BusinessMetrics,
	timeout time.Duration,
) *auditEmitter {
	return &auditEmitter{
		repo:    repo,
		signer:  signer,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
}
