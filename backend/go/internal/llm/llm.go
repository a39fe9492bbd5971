package llm

import (
	"ai_mem/backend/go/internal/config"
	"ai_mem/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse 表示模型没有返回任何候选回复。
// 候选存在但文本为空时不算错误，返回空字符串。
var ErrEmptyResponse = errors.New("llm returned an empty response")

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	// GenerateContent 将按顺序排列的消息发送给模型，并返回模型的完整回复文本。
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewLLM 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
//
// 参数:
//
//	ctx: 上下文，Gemini 客户端初始化时使用。
//	cfg: LLM 配置，Provider 决定使用哪个实现。
//
// 返回值:
//
//	LLM: 创建好的客户端。
//	error: 如果提供商不支持或初始化失败，则返回错误。
func NewLLM(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.Host)
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "gemini":
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
