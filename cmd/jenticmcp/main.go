package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jentic/internal/app"
	"jentic/internal/infra/config"
	"jentic/internal/infra/mcpserver"
	"jentic/internal/infra/restapi"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
	transportREST           = "rest"

	defaultLogFile = "jentic_mcp.log"
)

var defaultConfigFiles = []string{"jentic.yaml", "jentic.yml", "jentic.toml", ".jentic/config.yaml"}

type serveOptions struct {
	configPath string
	envFile    string
	transport  string
	httpAddr   string
	httpPath   string
	publicURL  string
	logFile    string
	logLevel   string
	overrides  map[string]any
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := serveOptions{
		transport: transportStdio,
		httpAddr:  "127.0.0.1:8010",
		httpPath:  mcpserver.DefaultHTTPPath,
		logFile:   defaultLogFile,
		logLevel:  "info",
	}

	root := &cobra.Command{
		Use:           "jenticmcp",
		Short:         "Serve the Jentic agent tools over MCP (stdio or streamable HTTP) or REST",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyServeFlagBindings(cmd.Flags(), &opts)
			if err := validateServeOptions(opts); err != nil {
				return err
			}
			logger, err := buildLogger(opts)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			err = serve(ctx, opts, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				logger.Error("server stopped", zap.Error(err))
			}
			return err
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default: jentic.yaml if present)")
	flags.StringVar(&opts.envFile, "env-file", "", "load environment variables from a .env file")
	flags.StringVar(&opts.transport, "transport", opts.transport, "server transport (stdio, streamable-http or rest)")
	flags.StringVar(&opts.httpAddr, "http-addr", opts.httpAddr, "listen address for streamable-http and rest")
	flags.StringVar(&opts.httpPath, "http-path", opts.httpPath, "streamable HTTP endpoint path")
	flags.StringVar(&opts.publicURL, "public-url", "", "base URL advertised in the REST OpenAPI document")
	flags.StringVar(&opts.logFile, "log-file", opts.logFile, "log file (stdio transport only; other transports log to stderr)")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	flags.String("api-key", "", "agent API key (overrides JENTIC_AGENT_API_KEY)")
	flags.String("environment", "", "platform environment (prod or qa)")
	flags.String("base-url", "", "platform base URL (overrides environment)")
	flags.String("load-policy", "", "what execute does with unloaded ids (implicit or explicit)")
	flags.Bool("mock", false, "use the built-in demo catalog instead of the platform")
	flags.String("mock-catalog", "", "YAML or JSON catalog served in mock mode")
	flags.String("persist", "", "metadata store backend (none, file, bolt or redis)")
	flags.String("persist-path", "", "metadata store path for the file and bolt backends")

	root.AddCommand(newVersionCmd())
	return root
}

func applyServeFlagBindings(flags *pflag.FlagSet, opts *serveOptions) {
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

func validateServeOptions(opts serveOptions) error {
	switch opts.transport {
	case transportStdio:
		return nil
	case transportStreamableHTTP, transportREST:
		if strings.TrimSpace(opts.httpAddr) == "" {
			return errors.New("http address is required")
		}
		if _, _, err := net.SplitHostPort(opts.httpAddr); err != nil {
			return fmt.Errorf("invalid http address %q: %w", opts.httpAddr, err)
		}
		if opts.transport == transportStreamableHTTP && !strings.HasPrefix(opts.httpPath, "/") {
			return fmt.Errorf("http path must start with /: %q", opts.httpPath)
		}
		return nil
	default:
		return fmt.Errorf("unsupported transport: %s", opts.transport)
	}
}

// buildLogger keeps stdout free for the protocol when serving over stdio.
func buildLogger(opts serveOptions) (*zap.Logger, error) {
	loggerOpts := app.LoggerOptions{Level: opts.logLevel}
	if opts.transport == transportStdio {
		loggerOpts.OutputPath = opts.logFile
		if strings.TrimSpace(loggerOpts.OutputPath) == "" {
			loggerOpts.OutputPath = defaultLogFile
		}
	}
	return app.BuildLogger(loggerOpts)
}

func surfaceFor(transport string) app.Surface {
	if transport == transportREST {
		return app.SurfaceREST
	}
	return app.SurfaceMCP
}

func openApplication(ctx context.Context, opts serveOptions, logger *zap.Logger) (*app.Application, error) {
	path := strings.TrimSpace(opts.configPath)
	if path == "" {
		path = config.FindConfigFile(defaultConfigFiles...)
	}
	cfg, err := config.NewLoader(logger).Load(ctx, config.LoadOptions{
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
	application, err := app.InitializeApplication(cfg, app.LoggingConfig{Logger: logger}, surfaceFor(opts.transport))
	if err != nil {
		return nil, err
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Close()
		return nil, err
	}
	return application, nil
}

func newMCPServer(application *app.Application) (*mcpserver.Server, error) {
	return mcpserver.New(mcpserver.Options{
		Version:  app.Version,
		Tools:    application.Tools(),
		Adapter:  application.Adapter(),
		Notifier: application.Broker(),
		Metrics:  application.Metrics(),
		Logger:   application.Logger(),
	})
}

func newRESTHandler(application *app.Application, opts serveOptions) http.Handler {
	publicURL := strings.TrimSpace(opts.publicURL)
	if publicURL == "" {
		publicURL = "http://" + opts.httpAddr
	}
	return restapi.NewHandler(restapi.Options{
		Tools:   application.Tools(),
		BaseURL: publicURL,
		Version: app.Version,
		Logger:  application.Logger(),
	})
}

// serve runs the chosen transport next to the observability listener. When
// the transport returns (a stdio client hanging up, say) the listener is
// stopped too.
func serve(ctx context.Context, opts serveOptions, logger *zap.Logger) error {
	application, err := openApplication(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return application.ServeObservability(groupCtx)
	})
	group.Go(func() error {
		defer stop()
		switch opts.transport {
		case transportREST:
			return restapi.Serve(groupCtx, opts.httpAddr, newRESTHandler(application, opts), logger)
		case transportStreamableHTTP:
			server, err := newMCPServer(application)
			if err != nil {
				return err
			}
			return server.RunStreamableHTTP(groupCtx, opts.httpAddr, opts.httpPath)
		default:
			server, err := newMCPServer(application)
			if err != nil {
				return err
			}
			return server.RunStdio(groupCtx)
		}
	})
	return group.Wait()
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jenticmcp version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			build := app.Build
			if build == "" {
				build = "unknown"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "jenticmcp %s (%s)\n", app.Version, build)
			return err
		},
	}
}
