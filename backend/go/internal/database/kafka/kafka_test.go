package kafka

import (
	"ai_mem/backend/go/internal/models"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingTopics(t *testing.T) {
	got := MissingTopics(
		[]string{"memory.create", "other"},
		[]string{"memory.create", "memory.created", "", "memory.created"},
	)
	assert.Equal(t, []string{"memory.created"}, got)
	assert.Empty(t, MissingTopics([]string{"a"}, []string{"a"}))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestResultPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewResultPublisher(w, "memory.created")

	res := models.NoFactsResult()
	require.NoError(t, p.Publish(context.Background(), "u-1", res))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "memory.created", w.msgs[0].Topic)
	assert.Equal(t, []byte("u-1"), w.msgs[0].Key)

	var ev struct {
		UserID string                `json:"user_id"`
		Result models.PipelineResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "u-1", ev.UserID)
	assert.Equal(t, "No facts extracted", ev.Result.Message)
}

func TestResultPublisherWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewResultPublisher(&fakeWriter{err: boom}, "memory.created")
	assert.ErrorIs(t, p.Publish(context.Background(), "u", models.NoFactsResult()), boom)
}
