// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	"github.com/allisson/fieldcrypt/internal/app"
	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// WithCLIActor tags ctx so audit entries written by a command name the operator.
// An empty performedBy leaves ctx untouched and the entry is recorded as system.
func WithCLIActor(ctx context.Context, performedBy string) context.Context {
	if performedBy == "" {
		return ctx
	}
	return userkeyDomain.WithActor(ctx, userkeyDomain.Actor{
		PerformedBy:   performedBy,
		SourceAddress: "cli",
	})
}

// parseFieldList splits a comma separated list of field names, dropping blanks.
func parseFieldList(fields string) ([]string, error) {
	var names []string
	for name := range strings.SplitSeq(fields, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one field name is required")
	}
	return names, nil
}

// readRecord decodes a single JSON object from reader.
func readRecord(reader io.Reader) (userkeyDomain.Record, error) {
	var record userkeyDomain.Record
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return record, nil
}

// writeJSON writes value as indented JSON followed by a newline.
func writeJSON(writer io.Writer, value any) error {
	jsonBytes, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
