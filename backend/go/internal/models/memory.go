package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultApp is the app tag applied when a request does not name one.
const DefaultApp = "openmemory"

// Payload keys written by the pipeline. They always overwrite caller
// metadata with the same name.
const (
	PayloadUserID          = "user_id"
	PayloadOriginalMessage = "original_message"
	PayloadFact            = "fact"
	PayloadCreatedAt       = "created_at"
	PayloadData            = "data"
)

// ErrInvalidRequest is returned by Validate for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid memory creation request")

// MemoryCreationRequest is the input of one pipeline run.
type MemoryCreationRequest struct {
	UserID   string         `json:"user_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Infer    bool           `json:"infer"`
	App      string         `json:"app"`
}

// UnmarshalJSON applies the request defaults for fields absent from the body.
func (r *MemoryCreationRequest) UnmarshalJSON(data []byte) error {
	type plain MemoryCreationRequest
	p := plain{Infer: true, App: DefaultApp}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	if p.App == "" {
		p.App = DefaultApp
	}
	*r = MemoryCreationRequest(p)
	return nil
}

// Validate reports missing required fields.
func (r *MemoryCreationRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(r.Text) == "" {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// MemoryRecord is one persisted fact.
type MemoryRecord struct {
	ID      uuid.UUID
	Vector  []float32
	Payload map[string]any
}

// CreatedMemory reports a fact that was committed.
type CreatedMemory struct {
	ID   string `json:"id"`
	Fact string `json:"fact"`
}

// FailedMemory reports a fact whose embedding or storage failed.
type FailedMemory struct {
	Fact  string `json:"fact"`
	Error string `json:"error"`
}

// PipelineResult summarises a pipeline run.
//
// FactsCount always equals CreatedCount + FailedCount and Success is true
// iff at least one record was created.
type PipelineResult struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	FactsCount   int             `json:"facts_count"`
	CreatedCount int             `json:"created_count"`
	FailedCount  int             `json:"failed_count"`
	Created      []CreatedMemory `json:"created"`
	Failures     []FailedMemory  `json:"failures,omitempty"`
}

// NoFactsResult is the result of a run in which nothing was extracted.
func NoFactsResult() *PipelineResult {
	return &PipelineResult{
		Message:  "No facts extracted",
		Created:  []CreatedMemory{},
	}
}
