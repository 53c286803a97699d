package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forest-guardian/flood-mapper/internal/properties"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "\033[31m%s\033[0m\n", err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "floodmapper",
		Short:         "Map floods from Sentinel-1 backscatter",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.interactive(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	root.AddCommand(
		newMapCommand(flags, "decision", "Classify every pixel as flood (1) or non-flood (0)"),
		newMapCommand(flags, "probability", "Compute the posterior flood probability of every pixel"),
		newServeCommand(flags),
	)
	return root
}

// loadConfig reads the dotenv file, when present, then the configuration.
func loadConfig(flags *rootFlags) (*properties.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", flags.envFile, err)
		}
	}
	cfg, err := properties.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
