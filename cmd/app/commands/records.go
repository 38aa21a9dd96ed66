package commands

import (
	"context"
	"fmt"
	"log/slog"

	userkeyUseCase "github.com/allisson/fieldcrypt/internal/userkey/usecase"
)

// RunEncryptRecord reads one JSON record from ioTuple.Reader, encrypts the listed fields
// for userID and writes the resulting record as JSON.
func RunEncryptRecord(
	ctx context.Context,
	encryptionUseCase userkeyUseCase.EncryptionUseCase,
	logger *slog.Logger,
	ioTuple IOTuple,
	userID string,
	fields string,
) error {
	fieldNames, err := parseFieldList(fields)
	if err != nil {
		return err
	}
	record, err := readRecord(ioTuple.Reader)
	if err != nil {
		return err
	}

	encrypted, err := encryptionUseCase.EncryptFields(ctx, userID, record, fieldNames)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}

	logger.Debug("record encrypted",
		slog.String("user_id", userID),
		slog.Int("field_count", len(fieldNames)),
	)
	return writeJSON(ioTuple.Writer, encrypted)
}

// RunDecryptRecord reads one JSON record holding envelopes, decrypts the listed
// fields for userID and writes the plaintext record as JSON. Byte values are written
// base64 encoded.
func RunDecryptRecord(
	ctx context.Context,
	encryptionUseCase userkeyUseCase.EncryptionUseCase,
	logger *slog.Logger,
	ioTuple IOTuple,
	userID string,
	fields string,
) error {
	fieldNames, err := parseFieldList(fields)
	if err != nil {
		return err
	}
	record, err := readRecord(ioTuple.Reader)
	if err != nil {
		return err
	}

	decrypted, err := encryptionUseCase.DecryptFields(ctx, userID, record, fieldNames)
	if err != nil {
		return fmt.Errorf("failed to decrypt record: %w", err)
	}

	logger.Debug("record decrypted",
		slog.String("user_id", userID),
		slog.Int("field_count", len(fieldNames)),
	)
	return writeJSON(ioTuple.Writer, decrypted)
}
