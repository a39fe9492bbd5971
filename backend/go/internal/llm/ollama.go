package llm

import (
	"ai_mem/backend/go/internal/models"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于 Ollama Chat API 的 LLM 客户端。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 单次调用的截止时间由调用方的 ctx 控制，这里只兜底。
	hc := &http.Client{Timeout: 120 * time.Second}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent 使用 Ollama Chat API 生成内容 (非流式)。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	stream := false
	var result *olla.ChatResponse
	err := o.client.Chat(ctx, &olla.ChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(req),
		Stream:   &stream,
	}, func(resp olla.ChatResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	if result == nil {
		return nil, ErrEmptyResponse
	}

	return &models.GenerateContentResponse{
		Text:         result.Message.Content,
		CreateTime:   result.CreatedAt,
		ModelVersion: result.Model,
	}, nil
}

// EnsureModel 检查模型是否已在 Ollama 本地存在，不存在时自动拉取。
//
// 返回值:
//
//	bool: 是否执行了拉取。
//	error: 查询或拉取失败时返回错误。
func (o *Ollama) EnsureModel(ctx context.Context) (bool, error) {
	list, err := o.client.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list ollama models: %w", err)
	}
	for _, m := range list.Models {
		if m.Name == o.model || m.Model == o.model {
			return false, nil
		}
	}

	err = o.client.Pull(ctx, &olla.PullRequest{Model: o.model}, func(olla.ProgressResponse) error {
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to pull ollama model %s: %w", o.model, err)
	}
	return true, nil
}

// toOllamaMessages 将内部消息转换为 Ollama 的消息格式。
func toOllamaMessages(req *models.GenerateContentRequest) []olla.Message {
	msgs := make([]olla.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := string(m.Role)
		if m.Role == models.SpeakerModel {
			role = string(models.SpeakerAssistant)
		}
		msgs = append(msgs, olla.Message{Role: role, Content: m.Content})
	}
	return msgs
}
