package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jentic/internal/agenttools"
)

func newCodeSampleCmd() *cobra.Command {
	var format, language string
	cmd := &cobra.Command{
		Use:   "code-sample",
		Short: "Print an agent integration sample for a model vendor and language",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := agenttools.CodeSample(format, language)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), code)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "claude", "model vendor (claude, anthropic, chatgpt or openai)")
	cmd.Flags().StringVar(&language, "language", agenttools.LanguagePython, "sample language (python or javascript)")
	return cmd
}
