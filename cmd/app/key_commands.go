package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldcrypt/cmd/app/commands"
	"github.com/allisson/fieldcrypt/internal/app"
	"github.com/allisson/fieldcrypt/internal/config"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a local master key as a base64key:// keeper URI",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container := app.NewContainer(config.Load())
				defer shutdown(ctx, container)

				return commands.RunCreateMasterKey(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "generate-user-key",
			Usage: "Provision the first encryption key for a user",
			Flags: []cli.Flag{
				userFlag(),
				actorFlag(),
				&cli.BoolFlag{
					Name:  "ignore-existing",
					Value: false,
					Usage: "Succeed when the user already has an active key",
				},
				formatFlag(),
			},
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

				return commands.RunGenerateUserKey(
					commands.WithCLIActor(ctx, cmd.String("actor")),
					encryptionUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("user-id"),
					cmd.Bool("ignore-existing"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "rotate-user-key",
			Usage: "Rotate the encryption key of a user",
			Flags: []cli.Flag{userFlag(), actorFlag(), formatFlag()},
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

				return commands.RunRotateUserKey(
					commands.WithCLIActor(ctx, cmd.String("actor")),
					encryptionUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("user-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "key-stats",
			Usage: "Show how many users have keys and how many keys were rotated",
			Flags: []cli.Flag{formatFlag()},
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

				return commands.RunKeyStats(
					ctx,
					encryptionUseCase,
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
