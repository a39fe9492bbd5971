package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel 是一个用于 Gemini Embedding 接口的客户端。
type GoogleModel struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

// NewGoogleModel 创建一个新的 GoogleModel 客户端。
//
// 参数:
//
//	ctx: 上下文，用于初始化客户端。
//	modelName: 模型名称 (例如: "text-embedding-004")。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*GoogleModel: 新创建的客户端实例。
//	error: 如果客户端初始化失败，则返回错误。
func NewGoogleModel(ctx context.Context, modelName, apiKey string, opts ...option.ClientOption) (*GoogleModel, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleModel{client: client, model: client.EmbeddingModel(modelName)}, nil
}

// Embed 为单个文本生成嵌入向量。
func (m *GoogleModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, ErrNoEmbeddings
	}
	return res.Embedding.Values, nil
}

// Close 关闭底层客户端。
func (m *GoogleModel) Close() error {
	return m.client.Close()
}
