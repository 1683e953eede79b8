package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"spese-report/internal/backend"
	"spese-report/internal/cli"
	"spese-report/internal/config"
	"spese-report/internal/log"
)

type rootOptions struct {
	configFile string
	format     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "reportctl",
		Short: "Generate, inspect and dispatch spending reports",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported --format %q: use json or yaml", opts.format)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML file overriding environment settings")
	rootCmd.PersistentFlags().StringVar(&opts.format, "format", "json", "Output format: json or yaml")

	rootCmd.AddCommand(
		newGenerateCommand(opts),
		newAvailableCommand(opts),
		newRunBatchCommand(opts),
		newRemindCommand(opts),
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newSheetsAuthCommand(),
	)
	return rootCmd
}

// app is what a subcommand gets after start-up.
type app struct {
	cfg    *config.Config
	store  backend.Backend
	logger *log.Logger
}

func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	// stdout carries the command output, so logs go to stderr.
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})
	store, err := backend.Open(ctx, backend.FromAppConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store, logger: logger}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// print writes v as indented JSON, or as YAML with the same field names and
// number literals as the JSON form.
func (o *rootOptions) print(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if o.format != "yaml" {
		_, err = fmt.Fprintf(w, "%s\n", raw)
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles JSON input parses with.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
