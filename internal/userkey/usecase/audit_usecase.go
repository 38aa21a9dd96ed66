package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// ErrAuditSigningDisabled is returned by Verify when no signing key is configured.
var ErrAuditSigningDisabled = apperrors.Wrap(apperrors.ErrInvalidInput, "audit signing is not configured")

// AuditVerificationReport summarizes a signature check over the audit trail.
type AuditVerificationReport struct {
	Total    int
	Valid    int
	Unsigned int
	Invalid  []uuid.UUID
}

type auditUseCase struct {
	auditRepo AuditRepository
	signer    AuditSigner
}

// List returns audit entries oldest first.
func (a *auditUseCase) List(ctx context.Context, offset, limit int) ([]*userkeyDomain.AuditEntry, error) {
	return a.auditRepo.List(ctx, offset, limit)
}

// Verify pages through every audit entry and checks its signature. Entries written
// while signing was disabled are counted as unsigned, not invalid.
func (a *auditUseCase) Verify(ctx context.Context, batchSize int) (*AuditVerificationReport, error) {
	if a.signer == nil {
		return nil, ErrAuditSigningDisabled
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	report := &AuditVerificationReport{}
	for offset := 0; ; offset += batchSize {
		entries, err := a.auditRepo.List(ctx, offset, batchSize)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			report.Total++
			if len(entry.Signature) == 0 {
				report.Unsigned++
				continue
			}
			err := a.signer.Verify(entry)
			switch {
			case err == nil:
				report.Valid++
			case errors.Is(err, userkeyDomain.ErrSignatureInvalid):
				report.Invalid = append(report.Invalid, entry.ID)
			default:
				return nil, err
			}
		}

		if len(entries) < batchSize {
			return report, nil
		}
	}
}

// NewAuditUseCase creates an AuditUseCase. signer may be nil, in which case Verify
// returns ErrAuditSigningDisabled.
func NewAuditUseCase(auditRepo AuditRepository, signer AuditSigner) AuditUseCase {
	return &auditUseCase{auditRepo: auditRepo, signer: signer}
}
