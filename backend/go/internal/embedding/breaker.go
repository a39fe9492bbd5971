package embedding

import (
	"ai_mem/backend/go/pkg/circuitbreaker"
	"context"
)

type guarded struct {
	next    Embedding
	breaker circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker 使用熔断器包装 Embedding 模型。
func WithCircuitBreaker(next Embedding, breaker circuitbreaker.CircuitBreaker) Embedding {
	return &guarded{next: next, breaker: breaker}
}

func (g *guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	return circuitbreaker.Call(g.breaker, func() ([]float32, error) {
		return g.next.Embed(ctx, text)
	})
}
