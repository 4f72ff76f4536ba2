package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/syndicator/internal"
	"github.com/starford/syndicator/internal/syndication"
	pkgconfig "github.com/starford/syndicator/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// deploy handles one deploy-succeeded event. The trigger comes from the
// --payload file (or stdin with "-") and is overridden by explicit flags.
func deploy(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	var trig syndication.Trigger
	if p := cmd.String("payload"); p != "" {
		body, err := readPayload(p)
		if err != nil {
			return err
		}
		trig = syndication.ParseTrigger(body)
	}
	if v := cmd.String("context"); v != "" {
		trig.Context = v
	}
	if v := cmd.String("commit-message"); v != "" {
		trig.CommitMessage = v
	}

	// Logs go to stderr so stdout carries only the report.
	opts = append(opts, internal.WithLogOutput(os.Stderr))
	rep, err := internal.Deploy(ctx, trig, opts...)
	if err != nil {
		return err
	}
	return printReport(rep)
}

func syndicate(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	req := syndication.ManualRequest{All: cmd.Bool("all"), Post: cmd.String("post")}
	if !req.All && req.Post == "" && cmd.Args().Len() > 0 {
		req.Post = cmd.Args().First()
	}

	opts = append(opts, internal.WithLogOutput(os.Stderr))
	rep, err := internal.Syndicate(ctx, req, opts...)
	if err != nil {
		return err
	}
	return printReport(rep)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func readPayload(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	body, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}

// printReport writes the report as JSON and fails when any post errored.
func printReport(rep *syndication.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if len(rep.Errors) > 0 {
		return fmt.Errorf("%d post(s) failed", len(rep.Errors))
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "syndicator",
		Usage:   "Syndicate blog posts to social platforms and track state in front matter",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the HTTP API, deploy hook and file watcher",
				Action: serve,
			},
			{
				Name:   "run",
				Usage:  "Handle one deploy-succeeded event and print the report",
				Action: deploy,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Deploy event JSON file, or - for stdin",
					},
					&cli.StringFlag{
						Name:    "context",
						Usage:   "Deploy context (production, deploy-preview, ...)",
						Sources: cli.EnvVars("CONTEXT", "DEPLOY_CONTEXT"),
					},
					&cli.StringFlag{
						Name:    "commit-message",
						Usage:   "Commit message of the deployed revision",
						Sources: cli.EnvVars("COMMIT_MESSAGE"),
					},
				},
			},
			{
				Name:      "syndicate",
				Usage:     "Syndicate one post, or every post, right now",
				ArgsUsage: "[post]",
				Action:    syndicate,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Process every post",
					},
					&cli.StringFlag{
						Name:  "post",
						Usage: "Post slug, file name, content path or URL",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
