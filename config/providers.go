package config

import (
	"go.uber.org/zap"

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/providers/anthropic"
	"github.com/tensorzero/gateway/llm/providers/bedrock"
	"github.com/tensorzero/gateway/llm/providers/gemini"
	"github.com/tensorzero/gateway/llm/providers/openaiwire"
)

func anthropicAdapter() llm.ModelProviderAdapter { return anthropic.New() }
func bedrockAdapter() llm.ModelProviderAdapter    { return bedrock.New() }
func googleAIAdapter() llm.ModelProviderAdapter   { return gemini.NewGoogleAI() }
func vertexAdapter() llm.ModelProviderAdapter     { return gemini.NewVertex() }

func defaultOpenAICaps() openaiwire.Capabilities {
	return openaiwire.DefaultCapabilities()
}

func openAIWireAdapter(kind llm.ProviderKind, path string, caps openaiwire.Capabilities, logger *zap.Logger) llm.ModelProviderAdapter {
	return openaiwire.New(kind, path, caps, logger)
}
