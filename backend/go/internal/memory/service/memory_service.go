package service

import (
	"ai_mem/backend/go/internal/embedding"
	"ai_mem/backend/go/internal/memory/diagnostics"
	"ai_mem/backend/go/internal/memory/extractor"
	"ai_mem/backend/go/internal/memory/store"
	"ai_mem/backend/go/internal/models"
	"ai_mem/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Option configures a MemoryService.
type Option func(*MemoryService)

// WithWorkers sets how many facts of one request are persisted concurrently.
// Values below 2 keep processing sequential.
func WithWorkers(n int) Option {
	return func(s *MemoryService) { s.workers = n }
}

// WithCallTimeout bounds every extraction and embedding call. Zero disables
// the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(s *MemoryService) { s.callTimeout = d }
}

// WithClock replaces time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryService) { s.now = now }
}

// WithIDGenerator replaces uuid.New for record ids.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *MemoryService) { s.newID = gen }
}

// MemoryService turns a message into persisted memories: it extracts facts,
// embeds each one and stores it. Failures of a single fact never abort the
// others.
type MemoryService struct {
	factExtractor extractor.Extractor
	embedder      embedding.Embedding
	vecStore      store.Store
	emptyFacts    diagnostics.Sink
	logger        *logger.Logger

	workers     int
	callTimeout time.Duration
	now         func() time.Time
	newID       func() uuid.UUID
}

// NewMemoryService creates a new MemoryService. A nil sink discards
// empty-extraction diagnostics.
func NewMemoryService(factExtractor extractor.Extractor, embedder embedding.Embedding, vecStore store.Store, sink diagnostics.Sink, log *logger.Logger, opts ...Option) *MemoryService {
	if sink == nil {
		sink = diagnostics.Noop{}
	}
	s := &MemoryService{
		factExtractor: factExtractor,
		embedder:      embedder,
		vecStore:      vecStore,
		emptyFacts:    sink,
		logger:        log,
		workers:       1,
		now:           time.Now,
		newID:         uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add runs the pipeline for one request. It always returns a result:
// extraction failures degrade to "no facts" and per-fact failures are
// reported in the result's failures.
func (s *MemoryService) Add(ctx context.Context, req *models.MemoryCreationRequest) *models.PipelineResult {
	log := s.logger.WithUser(req.UserID)
	log.WithPayload(map[string]interface{}{"app": req.App, "infer": req.Infer}).Debug("creating memories")

	facts, raw, err := s.extract(ctx, req.Text)
	if err != nil {
		log.WithErr(err).Error("failed to extract facts")
		return models.NoFactsResult()
	}
	if len(facts) == 0 {
		s.emptyFacts.LogEmptyFacts(req.Text, raw)
		log.Warn("no facts extracted")
		return models.NoFactsResult()
	}

	outcomes := s.persistAll(ctx, req, facts)
	for _, o := range outcomes {
		if !o.OK() {
			log.WithErr(o.Err).WithPayload(map[string]interface{}{"fact": o.Fact}).Error("failed to create memory")
		}
	}

	res := Fold(outcomes)
	log.WithPayload(map[string]interface{}{
		"facts_count":   res.FactsCount,
		"created_count": res.CreatedCount,
		"failed_count":  res.FailedCount,
	}).Info(res.Message)
	return res
}

func (s *MemoryService) extract(ctx context.Context, text string) ([]string, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.factExtractor.Extract(ctx, text)
}

// persistAll returns one outcome per fact, in fact order, regardless of
// how many workers ran.
func (s *MemoryService) persistAll(ctx context.Context, req *models.MemoryCreationRequest, facts []string) []Outcome {
	outcomes := make([]Outcome, len(facts))
	if s.workers <= 1 || len(facts) == 1 {
		for i, fact := range facts {
			outcomes[i] = s.persist(ctx, req, fact)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, fact := range facts {
		g.Go(func() error {
			outcomes[i] = s.persist(ctx, req, fact)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *MemoryService) persist(ctx context.Context, req *models.MemoryCreationRequest, fact string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fact, fmt.Errorf("panic while creating memory: %v", r))
		}
	}()

	vector, err := s.embed(ctx, fact)
	if err != nil {
		return Failed(fact, fmt.Errorf("failed to embed fact: %w", err))
	}

	record := &models.MemoryRecord{
		ID:      s.newID(),
		Vector:  vector,
		Payload: s.buildPayload(req, fact),
	}
	if err := s.vecStore.Insert(ctx, record.Vector, record.ID, record.Payload); err != nil {
		return Failed(fact, fmt.Errorf("failed to store memory: %w", err))
	}
	return Succeeded(fact, record)
}

func (s *MemoryService) embed(ctx context.Context, fact string) ([]float32, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.embedder.Embed(ctx, fact)
}

// buildPayload copies caller metadata first so the reserved keys overwrite
// any collision.
func (s *MemoryService) buildPayload(req *models.MemoryCreationRequest, fact string) map[string]any {
	payload := make(map[string]any, len(req.Metadata)+5)
	for k, v := range req.Metadata {
		payload[k] = v
	}
	payload[models.PayloadUserID] = req.UserID
	payload[models.PayloadOriginalMessage] = req.Text
	payload[models.PayloadFact] = fact
	payload[models.PayloadCreatedAt] = s.now().UTC().Format(time.RFC3339Nano)
	payload[models.PayloadData] = fact
	return payload
}

func (s *MemoryService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}
