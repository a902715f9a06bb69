package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"jentic/internal/app"
	"jentic/internal/infra/config"
)

var defaultConfigFiles = []string{"jentic.yaml", "jentic.yml", "jentic.toml", ".jentic/config.yaml"}

type cliOptions struct {
	configPath string
	envFile    string
	output     string
	logLevel   string
	overrides  map[string]any
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{
		output:   outputText,
		logLevel: "warn",
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:           "jentic",
		Short:         "Search, load and execute third-party APIs and workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd.Flags(), opts)
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			logger, err := app.BuildLogger(app.LoggerOptions{Level: opts.logLevel})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default: jentic.yaml if present)")
	flags.StringVar(&opts.envFile, "env-file", "", "load environment variables from a .env file")
	flags.StringVarP(&opts.output, "output", "o", opts.output, "output format (text, json or yaml)")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	flags.String("api-key", "", "agent API key (overrides JENTIC_AGENT_API_KEY)")
	flags.String("environment", "", "platform environment (prod or qa)")
	flags.String("base-url", "", "platform base URL (overrides environment)")
	flags.String("load-policy", "", "what execute does with unloaded ids (implicit or explicit)")
	flags.Bool("mock", false, "use the built-in demo catalog instead of the platform")
	flags.String("mock-catalog", "", "YAML or JSON catalog served in mock mode")
	flags.String("persist", "", "metadata store backend (none, file, bolt or redis)")
	flags.String("persist-path", "", "metadata store path for the file and bolt backends")

	root.AddCommand(
		newSearchCmd(opts),
		newLoadCmd(opts),
		newExecuteCmd(opts),
		newToolsCmd(opts),
		newAPIsCmd(opts),
		newExportCmd(opts),
		newAgentCmd(opts),
		newMCPConfigCmd(opts),
		newCodeSampleCmd(),
		newVersionCmd(),
	)
	return root
}

// applyRootFlagBindings turns explicitly set flags into config overrides so
// unset flags never shadow file or environment values.
func applyRootFlagBindings(flags *pflag.FlagSet, opts *cliOptions) {
	opts.overrides = make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "api-key":
			opts.overrides["api_key"], _ = flags.GetString("api-key")
		case "environment":
			opts.overrides["environment"], _ = flags.GetString("environment")
		case "base-url":
			opts.overrides["base_url"], _ = flags.GetString("base-url")
		case "load-policy":
			opts.overrides["load_policy"], _ = flags.GetString("load-policy")
		case "mock":
			opts.overrides["mock.enabled"], _ = flags.GetBool("mock")
		case "mock-catalog":
			opts.overrides["mock.catalog_path"], _ = flags.GetString("mock-catalog")
		case "persist":
			opts.overrides["persist.backend"], _ = flags.GetString("persist")
		case "persist-path":
			opts.overrides["persist.path"], _ = flags.GetString("persist-path")
		}
	})
}

// openApplication loads configuration and starts a runtime for one command.
// Callers close it.
func openApplication(ctx context.Context, opts *cliOptions, surface app.Surface) (*app.Application, error) {
	path := strings.TrimSpace(opts.configPath)
	if path == "" {
		path = config.FindConfigFile(defaultConfigFiles...)
	}
	cfg, err := config.NewLoader(opts.logger).Load(ctx, config.LoadOptions{
		Path:      path,
		EnvFile:   opts.envFile,
		Overrides: opts.overrides,
	})
	if err != nil {
		return nil, err
	}
	if err := config.RequireAPIKey(cfg); err != nil {
		return nil, err
	}
	application, err := app.InitializeApplication(cfg, app.LoggingConfig{Logger: opts.logger}, surface)
	if err != nil {
		return nil, err
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Close()
		return nil, err
	}
	return application, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jentic version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			build := app.Build
			if build == "" {
				build = "unknown"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "jentic %s (%s)\n", app.Version, build)
			return err
		},
	}
}
