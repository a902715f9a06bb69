package agenttools

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jentic/internal/domain"
	"jentic/internal/tooladapter"
)

const (
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
)

//go:embed samples/*.md
var sampleFS embed.FS

// sample file names are <flavor>_<language>.md
var sampleFlavors = map[domain.ToolFormat]string{
	domain.ToolFormatAnthropic: "claude",
	domain.ToolFormatOpenAI:    "chatgpt",
}

type codeSampleArgs struct {
	Format   string `mapstructure:"format"`
	Language string `mapstructure:"language"`
}

// CodeSample returns the agent integration sample for a model vendor format
// (claude/anthropic or chatgpt/openai) and a language. Empty values select
// claude and python.
func CodeSample(format, language string) (string, error) {
	if strings.TrimSpace(format) == "" {
		format = "claude"
	}
	parsed, err := tooladapter.ParseFormat(format)
	if err != nil {
		return "", err
	}
	flavor, ok := sampleFlavors[parsed]
	if !ok {
		return "", domain.E(domain.CodeUnsupportedFormat, ToolGenerateCodeSample,
			fmt.Sprintf("no code sample for format %q, available formats: claude, chatgpt", format), nil)
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		lang = LanguagePython
	}
	data, err := sampleFS.ReadFile("samples/" + flavor + "_" + lang + ".md")
	if err != nil {
		return "", domain.E(domain.CodeInvalidArgument, ToolGenerateCodeSample,
			fmt.Sprintf("no %s sample for language %q, available languages: %s", flavor, language, strings.Join(SampleLanguages(), ", ")), nil)
	}
	return string(data), nil
}

// SampleLanguages lists the languages every sample format is written in.
func SampleLanguages() []string {
	return []string{LanguageJavaScript, LanguagePython}
}

// GenerateCodeSample answers generate_code_sample. Unknown formats or
// languages are reported inside the envelope.
func (s *Service) GenerateCodeSample(ctx context.Context, args map[string]any) (Envelope, error) {
	var in codeSampleArgs
	if err := decodeArgs(ToolGenerateCodeSample, args, &in); err != nil {
		return nil, err
	}
	code, err := CodeSample(in.Format, in.Language)
	if err != nil {
		s.logger.Debug("code sample not available",
			zap.String("format", in.Format),
			zap.String("language", in.Language),
			zap.Error(err),
		)
		// "code" carries the sample itself, so the failure code gets its own key
		failure := domain.FailedFrom(err, domain.CodeInvalidArgument)
		return Envelope{"result": map[string]any{
			"success":    false,
			"error_code": string(failure.Error.Code),
			"message":    failure.Error.Message,
		}}, nil
	}
	return Envelope{"result": map[string]any{
		"success": true,
		"code":    code,
	}}, nil
}
