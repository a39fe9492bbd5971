package llm

import (
	"ai_mem/backend/go/internal/models"
	"ai_mem/backend/go/pkg/circuitbreaker"
	"context"
)

type guarded struct {
	next    LLM
	breaker circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker 使用熔断器包装 LLM。熔断打开时调用直接返回 circuitbreaker.ErrCircuitOpen。
func WithCircuitBreaker(next LLM, breaker circuitbreaker.CircuitBreaker) LLM {
	return &guarded{next: next, breaker: breaker}
}

func (g *guarded) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	return circuitbreaker.Call(g.breaker, func() (*models.GenerateContentResponse, error) {
		return g.next.GenerateContent(ctx, req)
	})
}
