// Package main is the fieldcrypt command line.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

var version = "dev"

// Exit codes. Retryable failures get their own code so scripts can back off.
const (
	exitFailure   = 1
	exitRetryable = 75
)

func main() {
	cmd := &cli.Command{
		Name:     "fieldcrypt",
		Usage:    "Per-user field-level encryption engine",
		Version:  version,
		Commands: getCommands(version),
	}

	err := cmd.Run(context.Background(), os.Args)
	if err == nil {
		return
	}

	kind := apperrors.Classify(err)
	slog.Error("command failed", slog.String("kind", string(kind)), slog.Any("error", err))
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if apperrors.IsRetryable(err) {
		return exitRetryable
	}
	return exitFailure
}
