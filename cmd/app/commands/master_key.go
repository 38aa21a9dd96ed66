package commands

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
)

// RunCreateMasterKey generates a 32-byte local master key and prints it as a
// base64key:// keeper URI. Before printing, the URI is opened through kmsService and
// a sample is wrapped and unwrapped with it. Key material is zeroed after encoding.
//
// Security: base64key:// embeds the key in the URI. Use it for development only and
// point KMS_PROVIDER at awskms or vault in production.
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	keyURI := "base64key://" + base64.URLEncoding.EncodeToString(masterKey)
	cryptoDomain.Zero(masterKey)

	if err := verifyKeeper(ctx, kmsService, keyURI); err != nil {
		return err
	}

	keyID := cryptoService.KeeperKeyID(keyURI)
	logger.Info("master key created", slog.String("master_key_id", keyID))

	if format == "json" {
		return writeJSON(writer, map[string]string{
			"kms_provider":  "keeper",
			"kms_key_uri":   keyURI,
			"master_key_id": keyID,
		})
	}

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration (local keeper)")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, `KMS_PROVIDER="keeper"`)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", keyURI)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "# Master key id recorded on wrapped keys: %s\n", keyID)
	return nil
}

func verifyKeeper(ctx context.Context, kmsService cryptoService.KMSService, keyURI string) error {
	keeper, err := kmsService.OpenKeeper(ctx, keyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	sample := make([]byte, 32)
	if _, err := rand.Read(sample); err != nil {
		return fmt.Errorf("failed to generate sample: %w", err)
	}

	ciphertext, err := keeper.Encrypt(ctx, sample)
	if err != nil {
		return fmt.Errorf("failed to encrypt sample with KMS: %w", err)
	}
	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt sample with KMS: %w", err)
	}
	if !bytes.Equal(plaintext, sample) {
		return fmt.Errorf("KMS sample round trip mismatch")
	}
	return nil
}
