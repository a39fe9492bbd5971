package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Field names of the Milvus memory collection.
const (
	MilvusFieldID      = "id"
	MilvusFieldVector  = "vector"
	MilvusFieldPayload = "payload"
)

// MilvusInserter is the part of the Milvus client the store uses.
type MilvusInserter interface {
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
}

// MilvusStore writes memory records to a Milvus collection. A single-row
// insert is atomic in Milvus.
type MilvusStore struct {
	client     MilvusInserter
	collection string
	dimension  int
	health     func(ctx context.Context) error
}

// NewMilvusStore creates a new MilvusStore. health may be nil.
func NewMilvusStore(client MilvusInserter, collection string, dimension int, health func(context.Context) error) (*MilvusStore, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	return &MilvusStore{client: client, collection: collection, dimension: dimension, health: health}, nil
}

// Insert writes one row with the id, vector and JSON payload columns.
func (s *MilvusStore) Insert(ctx context.Context, vector []float32, id uuid.UUID, payload map[string]any) error {
	if err := checkDimension(vector, s.dimension); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(MilvusFieldID, []string{id.String()}),
		entity.NewColumnFloatVector(MilvusFieldVector, len(vector), [][]float32{vector}),
		entity.NewColumnJSONBytes(MilvusFieldPayload, [][]byte{raw}),
	}
	if _, err := s.client.Insert(ctx, s.collection, "", columns...); err != nil {
		return fmt.Errorf("failed to insert into Milvus collection %s: %w", s.collection, err)
	}
	return nil
}

// HealthCheck implements HealthChecker.
func (s *MilvusStore) HealthCheck(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health(ctx)
}
