package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
	userkeyUseCase "github.com/allisson/fieldcrypt/internal/userkey/usecase"
)

// RunGenerateUserKey provisions the first DEK for userID. With ignoreExisting set, a
// user that already has an active key is reported instead of failing the command.
func RunGenerateUserKey(
	ctx context.Context,
	encryptionUseCase userkeyUseCase.EncryptionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID string,
	ignoreExisting bool,
	format string,
) error {
	logger.Info("generating user key", slog.String("user_id", userID))

	key, err := encryptionUseCase.GenerateUserKey(ctx, userID)
	if err != nil {
		if ignoreExisting && errors.Is(err, userkeyDomain.ErrAlreadyExists) {
			logger.Info("user key already exists", slog.String("user_id", userID))
			return outputUserKey(writer, format, userID, 0, "exists")
		}
		return fmt.Errorf("failed to generate user key: %w", err)
	}

	logger.Info("user key generated",
		slog.String("user_id", key.UserID),
		slog.Uint64("version", uint64(key.Version)),
		slog.String("master_key_id", key.MasterKeyID),
	)
	return outputUserKey(writer, format, key.UserID, key.Version, "created")
}

// RunRotateUserKey makes a new DEK active for userID. Envelopes sealed under the
// previous version stay readable.
func RunRotateUserKey(
	ctx context.Context,
	encryptionUseCase userkeyUseCase.EncryptionUseCase,
	logger *slog.Logger,
	writer io.Writer,
	userID string,
	format string,
) error {
	logger.Info("rotating user key", slog.String("user_id", userID))

	version, err := encryptionUseCase.RotateUserKey(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to rotate user key: %w", err)
	}

	logger.Info("user key rotated",
		slog.String("user_id", userID),
		slog.Uint64("version", uint64(version)),
	)
	return outputUserKey(writer, format, userID, version, "rotated")
}

// RunKeyStats prints key coverage from the store. Cache figures are omitted since a
// CLI process has no warm cache.
func RunKeyStats(
	ctx context.Context,
	encryptionUseCase userkeyUseCase.EncryptionUseCase,
	writer io.Writer,
	format string,
) error {
	coverage, err := encryptionUseCase.GetKeyCoverage(ctx)
	if err != nil {
		return fmt.Errorf("failed to read key coverage: %w", err)
	}

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"users_with_active_key": coverage.UsersWithActiveKey,
			"rotated_keys":          coverage.RotatedKeys,
			"generated_at":          time.Now().UTC().Format(time.RFC3339),
		})
	}

	_, _ = fmt.Fprintf(writer, "Users with active key: %d\n", coverage.UsersWithActiveKey)
	_, _ = fmt.Fprintf(writer, "Rotated keys:          %d\n", coverage.RotatedKeys)
	return nil
}

func outputUserKey(writer io.Writer, format, userID string, version uint, status string) error {
	if format == "json" {
		result := map[string]any{
			"user_id": userID,
			"status":  status,
		}
		if version > 0 {
			result["version"] = version
		}
		return writeJSON(writer, result)
	}

	if version > 0 {
		_, _ = fmt.Fprintf(writer, "User key %s for %s (version %d)\n", status, userID, version)
	} else {
		_, _ = fmt.Fprintf(writer, "User key %s for %s\n", status, userID)
	}
	return nil
}
