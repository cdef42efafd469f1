package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/chutulu/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "chutulu",
		Usage: "Chutulu fire action CLI",
		Description: `A command-line tool for the chutulu fire action service.

Use this CLI to fetch action metadata, build and inspect fire transactions,
render the action as a QR code, and watch fire events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "action",
				Usage: "Call the action endpoint",
				Subcommands: []*cli.Command{
					actionGetCommand(),
					actionFireCommand(),
					actionQRCommand(),
				},
			},
			accountsCommand(),
			eventsCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Action server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "program-id",
				Usage:   "Game program id",
				EnvVars: []string{"PROGRAM_ID"},
				Value:   config.DefaultProgramID,
			},
			&cli.StringFlag{
				Name:    "token-mint",
				Usage:   "Reward token mint",
				EnvVars: []string{"TOKEN_MINT"},
				Value:   config.DefaultTokenMint,
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
