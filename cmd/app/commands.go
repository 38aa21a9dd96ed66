package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldcrypt/internal/app"
	"github.com/allisson/fieldcrypt/internal/config"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getRecordCommands()...)
	return cmds
}

// newEngineContainer loads and validates configuration for commands that touch the
// key service or the key store.
func newEngineContainer() (*app.Container, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.NewContainer(cfg), nil
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user-id",
		Aliases:  []string{"u"},
		Required: true,
		Usage:    "User whose key is used",
	}
}

func actorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "actor",
		Value:   os.Getenv("USER"),
		Usage:   "Operator recorded on audit entries",
		Sources: cli.EnvVars("FIELDCRYPT_ACTOR"),
	}
}

func shutdown(ctx context.Context, container *app.Container) {
	_ = container.Shutdown(context.WithoutCancel(ctx))
}
