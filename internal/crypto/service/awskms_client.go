package service

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/smithy-go"
)

// KMSAPI is the subset of *kms.Client used by AWSKMSClient.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSClient implements MasterKeyClient with AWS KMS Encrypt and Decrypt.
//
// The keyID may be a key id, key ARN, alias name or alias ARN. Wrap reports the key
// ARN returned by KMS so rows record the concrete key even when an alias was used.
type AWSKMSClient struct {
	api   KMSAPI
	keyID string
}

// NewAWSKMSClient loads the default AWS configuration (environment, shared config,
// instance role) and creates a client for keyID.
func NewAWSKMSClient(ctx context.Context, keyID string) (*AWSKMSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewAWSKMSClientWithAPI(kms.NewFromConfig(cfg), keyID), nil
}

// NewAWSKMSClientWithAPI creates an AWSKMSClient over an existing KMS API.
func NewAWSKMSClientWithAPI(api KMSAPI, keyID string) *AWSKMSClient {
	return &AWSKMSClient{api: api, keyID: keyID}
}

// Wrap encrypts plaintextKey under the configured KMS key.
func (c *AWSKMSClient) Wrap(ctx context.Context, plaintextKey []byte) ([]byte, string, error) {
	out, err := c.api.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(c.keyID),
		Plaintext: plaintextKey,
	})
	if err != nil {
		return nil, "", newKeyServiceError("wrap", awsErrorKind(err), err)
	}

	keyID := aws.ToString(out.KeyId)
	if keyID == "" {
		keyID = c.keyID
	}
	return out.CiphertextBlob, keyID, nil
}

// Unwrap decrypts a blob produced by Wrap.
func (c *AWSKMSClient) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := c.api.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(c.keyID),
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, newKeyServiceError("unwrap", awsErrorKind(err), err)
	}
	return out.Plaintext, nil
}

func awsErrorKind(err error) KeyServiceErrorKind {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return KeyServiceUnavailable
	}
	switch apiErr.ErrorCode() {
	case "NotFoundException":
		return KeyServiceNotFound
	case "AccessDeniedException", "DisabledException", "KMSInvalidStateException", "IncorrectKeyException":
		return KeyServiceAccessDenied
	default:
		return KeyServiceUnavailable
	}
}
