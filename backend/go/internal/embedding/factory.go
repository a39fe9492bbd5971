package embedding

import (
	"ai_mem/backend/go/internal/config"
	"context"
	"fmt"
)

// New 根据配置创建 Embedding 模型实例。
//
// 参数:
//
//	ctx: 上下文，Gemini 客户端初始化时使用。
//	cfg: Embedding 配置，Provider 可选 "ollama"、"openai"、"gemini"。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedding, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.Host)
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "gemini":
		return NewGoogleModel(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
