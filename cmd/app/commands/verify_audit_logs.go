package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	userkeyUseCase "github.com/allisson/fieldcrypt/internal/userkey/usecase"
)

// RunVerifyAuditLogs checks the HMAC-SHA256 signature of every audit entry and
// returns an error when any of them fails verification.
//
// Requirements: AUDIT_SIGNING_KEY must be the key the entries were written with.
func RunVerifyAuditLogs(
	ctx context.Context,
	auditUseCase userkeyUseCase.AuditUseCase,
	logger *slog.Logger,
	writer io.Writer,
	batchSize int,
	format string,
) error {
	logger.Info("verifying audit logs", slog.Int("batch_size", batchSize))

	report, err := auditUseCase.Verify(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to verify audit logs: %w", err)
	}

	if format == "json" {
		if err := outputVerifyJSON(writer, report); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputVerifyText(writer, report)
	}

	logger.Info("verification completed",
		slog.Int("total_checked", report.Total),
		slog.Int("valid", report.Valid),
		slog.Int("invalid", len(report.Invalid)),
		slog.Int("unsigned", report.Unsigned),
	)

	if len(report.Invalid) > 0 {
		return fmt.Errorf("integrity check failed: %d invalid signature(s)", len(report.Invalid))
	}
	return nil
}

// RunListAuditLogs prints one page of the audit trail, oldest first.
func RunListAuditLogs(
	ctx context.Context,
	auditUseCase userkeyUseCase.AuditUseCase,
	writer io.Writer,
	offset, limit int,
	format string,
) error {
	entries, err := auditUseCase.List(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if format == "json" {
		rows := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, map[string]any{
				"id":             entry.ID,
				"user_id":        entry.UserID,
				"operation":      entry.Operation,
				"performed_by":   entry.PerformedBy,
				"source_address": entry.SourceAddress,
				"timestamp":      entry.Timestamp.UTC().Format(time.RFC3339Nano),
				"details":        entry.Details,
				"signed":         len(entry.Signature) > 0,
			})
		}
		return writeJSON(writer, rows)
	}

	for _, entry := range entries {
		performedBy := "system"
		if entry.PerformedBy != nil {
			performedBy = *entry.PerformedBy
		}
		_, _ = fmt.Fprintf(writer, "%s  %-13s  %-24s  %s  %s\n",
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.Operation,
			entry.UserID,
			performedBy,
			entry.ID,
		)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(writer, "No audit logs found")
	}
	return nil
}

func outputVerifyText(writer io.Writer, report *userkeyUseCase.AuditVerificationReport) {
	_, _ = fmt.Fprintf(writer, "Audit Log Integrity Verification\n")
	_, _ = fmt.Fprintf(writer, "=================================\n\n")

	_, _ = fmt.Fprintf(writer, "Total Checked:  %d\n", report.Total)
	_, _ = fmt.Fprintf(writer, "Unsigned:       %d\n", report.Unsigned)
	_, _ = fmt.Fprintf(writer, "Valid:          %d\n", report.Valid)
	_, _ = fmt.Fprintf(writer, "Invalid:        %d\n\n", len(report.Invalid))

	switch {
	case len(report.Invalid) > 0:
		_, _ = fmt.Fprintf(writer, "WARNING: %d log(s) failed integrity check!\n\n", len(report.Invalid))
		_, _ = fmt.Fprintf(writer, "Invalid Log IDs:\n")
		for _, id := range report.Invalid {
			_, _ = fmt.Fprintf(writer, "  - %s\n", id)
		}
		_, _ = fmt.Fprintf(writer, "\nStatus: FAILED\n")
	case report.Total == 0:
		_, _ = fmt.Fprintf(writer, "Status: No audit logs found\n")
	default:
		_, _ = fmt.Fprintf(writer, "Status: PASSED\n")
	}
}

func outputVerifyJSON(writer io.Writer, report *userkeyUseCase.AuditVerificationReport) error {
	invalid := report.Invalid
	if invalid == nil {
		invalid = []uuid.UUID{}
	}
	return writeJSON(writer, map[string]any{
		"total_checked":  report.Total,
		"unsigned_count": report.Unsigned,
		"valid_count":    report.Valid,
		"invalid_count":  len(report.Invalid),
		"invalid_logs":   invalid,
		"passed":         len(report.Invalid) == 0,
	})
}
