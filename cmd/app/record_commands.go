package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldcrypt/cmd/app/commands"
)

func fieldsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "fields",
		Required: true,
		Usage:    "Comma separated field names, e.g. name,ssn",
	}
}

func getRecordCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "encrypt-record",
			Usage: "Encrypt fields of a JSON record read from stdin",
			Flags: []cli.Flag{userFlag(), fieldsFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newEngineContainer()
				if err != nil {
					return err
				}
				defer shutdown(ctx, container)

				encryptionUseCase, err := container.EncryptionUseCase()
				if err != nil {
					return err
				}

				return commands.RunEncryptRecord(
					ctx,
					encryptionUseCase,
					container.Logger(),
					commands.DefaultIO(),
					cmd.String("user-id"),
					cmd.String("fields"),
				)
			},
		},
		{
			Name:  "decrypt-record",
			Usage: "Decrypt fields of a JSON record read from stdin",
			Flags: []cli.Flag{userFlag(), fieldsFlag(), actorFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newEngineContainer()
				if err != nil {
					return err
				}
				defer shutdown(ctx, container)

				encryptionUseCase, err := container.EncryptionUseCase()
				if err != nil {
					return err
				}

				return commands.RunDecryptRecord(
					commands.WithCLIActor(ctx, cmd.String("actor")),
					encryptionUseCase,
					container.Logger(),
					commands.DefaultIO(),
					cmd.String("user-id"),
					cmd.String("fields"),
				)
			},
		},
	}
}
