package llm

import (
	"ai_mem/backend/go/internal/models"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个用于 Google Gemini 模型的 LLM 客户端。
type Gemini struct {
	client *genai.Client // Gemini 客户端实例。
	model  string        // 模型名称。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于初始化客户端。
//	model: 模型名称。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*Gemini: 新创建的客户端实例。
//	error: 如果客户端初始化失败，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string, opts ...option.ClientOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// GenerateContent 使用 Gemini 生成内容。system 消息作为 SystemInstruction 传入，其余消息作为用户输入。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	// 每次调用创建独立的 GenerativeModel，避免并发请求之间共享 SystemInstruction。
	model := g.client.GenerativeModel(g.model)
	if system := req.SystemPrompt(); system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	var parts []genai.Part
	for _, m := range req.Messages {
		if m.Role == models.SpeakerSystem {
			continue
		}
		parts = append(parts, genai.Text(m.Content))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with gemini: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrEmptyResponse
	}
	return &models.GenerateContentResponse{
		Text:         candidateText(resp),
		CreateTime:   time.Now().UTC(),
		ModelVersion: g.model,
	}, nil
}

// Close 关闭底层客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// candidateText 拼接第一个候选结果中的所有文本部分。
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
