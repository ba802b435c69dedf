package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/staykeep/internal"
	pkgconfig "github.com/starford/staykeep/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if url := cmd.String("server"); url != "" {
		cfg.Client.ServerURL = url
	}
	if token := cmd.String("token"); token != "" {
		cfg.Client.Token = token
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func migrateLegacy(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.MigrateLegacy(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Printf("status=%s migrated=%d skipped=%d\n", res.Status, res.Migrated, res.Skipped)
	return nil
}

func main() {
	clientFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Usage:   "Base URL of the staykeep server",
			Sources: cli.EnvVars("STAYKEEP_SERVER_URL"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for the server",
			Sources: cli.EnvVars("STAYKEEP_TOKEN"),
		},
	}

	cmd := &cli.Command{
		Name:   "staykeep",
		Usage:  "Property dashboard backend for short-term rentals: inventory, inspections and damage claims",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio against a running server",
				Flags:  clientFlags,
				Action: mcp,
			},
			{
				Name:   "migrate-legacy",
				Usage:  "Move inventory kept in the local state file to the server",
				Flags:  clientFlags,
				Action: migrateLegacy,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
