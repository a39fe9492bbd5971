package models

import "time"

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerSystem    SpeakerRole = "system"    // 系统指令角色。
	SpeakerUser      SpeakerRole = "user"      // 用户角色。
	SpeakerAssistant SpeakerRole = "assistant" // 助手角色。
	SpeakerModel     SpeakerRole = "model"     // 模型角色 (Gemini 使用)。
)

// Message 是发送给语言模型的一条消息。
type Message struct {
	Role    SpeakerRole `json:"role"`
	Content string      `json:"content"`
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	Messages []Message `json:"messages"` // 按顺序排列的对话消息，通常为 system + user。
}

// SystemPrompt 返回请求中第一条 system 消息的内容，不存在时返回空字符串。
func (r *GenerateContentRequest) SystemPrompt() string {
	for _, m := range r.Messages {
		if m.Role == SpeakerSystem {
			return m.Content
		}
	}
	return ""
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Text         string    `json:"text"`                   // 模型返回的完整文本。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
}
