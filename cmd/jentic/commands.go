package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jentic/internal/app"
	"jentic/internal/domain"
	"jentic/internal/infra/agentloop"
	"jentic/internal/tooladapter"
)

func parseIDs(args []string) ([]domain.OperationID, error) {
	ids := make([]domain.OperationID, 0, len(args))
	for _, arg := range args {
		id, err := domain.ParseOperationID(strings.TrimSpace(arg))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	var (
		keywords []string
		apis     []string
		limit    int
		withAuth bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search operations and workflows by capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Broker().Search(cmd.Context(), domain.SearchQuery{
				Text:                strings.Join(args, " "),
				Keywords:            keywords,
				APIs:                apis,
				Limit:               limit,
				FilterByCredentials: withAuth,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, opts.output, result); ok {
				return err
			}
			if len(result.Hits) == 0 {
				_, err := fmt.Fprintln(out, "no matches")
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAPI\tSCORE")
			for _, hit := range result.Hits {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", hit.ID, hit.Name, hit.APIName, hit.MatchScore)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringArrayVar(&keywords, "keyword", nil, "keyword to boost (repeatable)")
	cmd.Flags().StringArrayVar(&apis, "api", nil, "restrict results to an API (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().BoolVar(&withAuth, "with-credentials", false, "only return APIs the agent has credentials for")
	return cmd
}

type loadReport struct {
	Loaded   []domain.ExecutionMetadata `json:"loaded"`
	Failures map[string]string          `json:"failures,omitempty"`
}

func newLoadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <id>...",
		Short: "Load execution metadata for operation (op_) and workflow (wf_) ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Broker().Load(cmd.Context(), ids)
			if err != nil {
				return err
			}
			report := loadReport{Loaded: result.Loaded()}
			for id, failure := range result.Failures() {
				if report.Failures == nil {
					report.Failures = make(map[string]string)
				}
				report.Failures[id.String()] = failure.Error()
			}

			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, opts.output, report); ok {
				if err != nil {
					return err
				}
			} else {
				for _, meta := range report.Loaded {
					fmt.Fprintf(out, "loaded %s  %s\n", meta.ID, meta.Name)
				}
				failed := make([]string, 0, len(report.Failures))
				for id := range report.Failures {
					failed = append(failed, id)
				}
				sort.Strings(failed)
				for _, id := range failed {
					fmt.Fprintf(out, "failed %s: %s\n", id, report.Failures[id])
				}
			}
			if len(report.Failures) > 0 {
				return exitSilent(exitFailure)
			}
			return nil
		},
	}
}

func newExecuteCmd(opts *cliOptions) *cobra.Command {
	var (
		rawInputs string
		pairs     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Execute an operation or workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			inputs := map[string]any{}
			if strings.TrimSpace(rawInputs) != "" {
				if err := json.Unmarshal([]byte(rawInputs), &inputs); err != nil {
					return fmt.Errorf("--inputs must be a JSON object: %w", err)
				}
			}
			for key, value := range pairs {
				inputs[key] = value
			}

			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			result := application.Broker().Execute(cmd.Context(), domain.ExecutionRequest{ID: ids[0], Inputs: inputs})
			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, opts.output, result); ok {
				if err != nil {
					return err
				}
			} else if result.Success {
				if err := writeJSON(out, result.Output); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "execution failed: %s\n", result.Error.Error())
			}
			if !result.Success {
				return exitForResult(result)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawInputs, "inputs", "", "inputs as a JSON object")
	cmd.Flags().StringToStringVar(&pairs, "input", nil, "string input as key=value (repeatable)")
	return cmd
}

func newToolsCmd(opts *cliOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tools [id]...",
		Short: "Print LLM tool definitions for loaded operations",
		Long:  "Loads the given ids, then prints one tool definition per cached operation in the requested vendor format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			toolFormat, err := tooladapter.ParseFormat(format)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			if len(ids) > 0 {
				result, err := application.Broker().Load(cmd.Context(), ids)
				if err != nil {
					return err
				}
				for id, failure := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %s\n", id, failure)
				}
			}
			defs, err := application.Adapter().GenerateToolDefinitions(toolFormat)
			if err != nil {
				return err
			}
			specs := make([]any, 0, len(defs))
			for _, def := range defs {
				specs = append(specs, def.Spec)
			}
			out := cmd.OutOrStdout()
			if opts.output == outputYAML {
				return writeYAML(out, specs)
			}
			return writeJSON(out, specs)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(domain.ToolFormatOpenAI), "tool format (openai, anthropic, mcp or eino)")
	return cmd
}

func newAPIsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apis",
		Short: "List the APIs available to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			apis, err := application.Broker().ListAPIs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, opts.output, apis); ok {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VENDOR\tNAME\tVERSION")
			for _, api := range apis {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", api.Vendor, api.Name, api.Version)
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(opts *cliOptions) *cobra.Command {
	var path, guidePath string
	cmd := &cobra.Command{
		Use:   "export <id>...",
		Short: "Load ids and write their metadata to a jentic.json artifact",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			application, err := openApplication(cmd.Context(), opts, app.SurfaceCLI)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Broker().Load(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if failures := result.Failures(); len(failures) > 0 {
				for id, failure := range failures {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %s\n", id, failure)
				}
				return exitSilent(exitFailure)
			}
			count, err := application.Export(cmd.Context(), path)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", count, path); err != nil {
				return err
			}
			if guidePath == "" {
				return nil
			}
			if err := application.WriteGuide(path, guidePath); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote integration guide to %s\n", guidePath)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "out", domain.DefaultArtifactPath, "artifact path")
	cmd.Flags().StringVar(&guidePath, "guide", "", "also write a Markdown integration guide to this path")
	return cmd
}

func newAgentCmd(opts *cliOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "agent <task>",
		Short: "Let an LLM complete a task with search, load and execute",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApplication(cmd.Context(), opts, app.SurfaceAgent)
			if err != nil {
				return err
			}
			defer application.Close()

			cfg := application.Config().Agent
			model, err := agentloop.NewChatModel(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			runner, err := agentloop.New(agentloop.Options{
				Model:   model,
				Tools:   application.Tools(),
				Adapter: application.Adapter(),
				Config:  cfg,
				Logger:  application.Logger(),
			})
			if err != nil {
				return err
			}
			result, runErr := runner.Run(cmd.Context(), strings.Join(args, " "))

			out := cmd.OutOrStdout()
			if verbose {
				for i, step := range result.Steps {
					fmt.Fprintf(out, "[%d] %s %s\n    -> %s\n", i+1, step.Tool, step.Arguments, step.Output)
				}
			}
			if runErr != nil {
				return runErr
			}
			_, err = fmt.Fprintln(out, result.Answer)
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every tool call")
	return cmd
}
