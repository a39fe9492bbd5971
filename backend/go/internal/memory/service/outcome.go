package service

import (
	"ai_mem/backend/go/internal/models"
	"fmt"
)

// Outcome is the result of persisting a single fact. Exactly one of Record
// and Err is meaningful.
type Outcome struct {
	Fact   string
	Record *models.MemoryRecord
	Err    error
}

// Succeeded records a committed fact.
func Succeeded(fact string, record *models.MemoryRecord) Outcome {
	return Outcome{Fact: fact, Record: record}
}

// Failed records a fact whose embedding or storage failed.
func Failed(fact string, err error) Outcome {
	return Outcome{Fact: fact, Err: err}
}

// OK reports whether the fact was committed.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Record != nil
}

// Fold aggregates per-fact outcomes into a PipelineResult. Entries keep the
// order of outcomes.
func Fold(outcomes []Outcome) *models.PipelineResult {
	res := &models.PipelineResult{
		FactsCount: len(outcomes),
		Created:    []models.CreatedMemory{},
	}
	for _, o := range outcomes {
		if o.OK() {
			res.Created = append(res.Created, models.CreatedMemory{ID: o.Record.ID.String(), Fact: o.Fact})
			continue
		}
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		res.Failures = append(res.Failures, models.FailedMemory{Fact: o.Fact, Error: msg})
	}
	res.CreatedCount = len(res.Created)
	res.FailedCount = len(res.Failures)
	res.Success = res.CreatedCount > 0
	res.Message = fmt.Sprintf("Created %d memories", res.CreatedCount)
	return res
}
