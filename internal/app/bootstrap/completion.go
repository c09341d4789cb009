package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/sobrecupos-ai/internal/completion"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// BuildCompletionService selects the language model behind empathic phrasing
// and specialty disambiguation. COMPLETION_PROVIDER=bedrock uses Gemini as a
// fallback when a key is present; "gemini" uses Gemini alone; anything else
// leaves the service unconfigured so canned text is used.
func BuildCompletionService(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*completion.Service, func() error, error) {
	noop := func() error { return nil }

	var gemini *completion.GeminiClient
	if cfg.GeminiAPIKey != "" && (cfg.CompletionProvider == "gemini" || cfg.CompletionProvider == "bedrock") {
		g, err := completion.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		gemini = g
	}
	closer := noop
	if gemini != nil {
		closer = gemini.Close
	}

	switch cfg.CompletionProvider {
	case "bedrock":
		if awsCfg == nil || cfg.BedrockModelID == "" {
			_ = closer()
			return nil, noop, fmt.Errorf("bootstrap: bedrock requires AWS config and BEDROCK_MODEL_ID")
		}
		var primary completion.LLMClient = completion.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
		if gemini != nil {
			primary = completion.NewFallbackClient(primary, gemini, logger)
		}
		logger.Info("using bedrock completion", "model", cfg.BedrockModelID, "gemini_fallback", gemini != nil)
		return completion.NewService(primary, cfg.BedrockModelID, logger), closer, nil
	case "gemini":
		if gemini == nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini requires GEMINI_API_KEY")
		}
		logger.Info("using gemini completion", "model", cfg.GeminiModelID)
		return completion.NewService(gemini, cfg.GeminiModelID, logger), closer, nil
	default:
		logger.Warn("no completion provider configured; using canned phrasing")
		return completion.NewService(nil, "", logger), noop, nil
	}
}
