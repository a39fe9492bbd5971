package service

import (
	"ai_mem/backend/go/internal/models"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldCounts(t *testing.T) {
	for n := 0; n <= 6; n++ {
		for k := 0; k <= n; k++ {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				outcomes := make([]Outcome, 0, n)
				for i := 0; i < n; i++ {
					fact := fmt.Sprintf("fact-%d", i)
					if i < k {
						outcomes = append(outcomes, Failed(fact, errors.New("boom")))
					} else {
						outcomes = append(outcomes, Succeeded(fact, &models.MemoryRecord{ID: uuid.New()}))
					}
				}

				res := Fold(outcomes)
				assert.Equal(t, n, res.FactsCount)
				assert.Equal(t, n-k, res.CreatedCount)
				assert.Equal(t, k, res.FailedCount)
				assert.Equal(t, res.FactsCount, res.CreatedCount+res.FailedCount)
				assert.Equal(t, n-k > 0, res.Success)
				assert.Len(t, res.Created, n-k)
				if k == 0 {
					assert.Nil(t, res.Failures)
				} else {
					assert.Len(t, res.Failures, k)
				}
				assert.Equal(t, fmt.Sprintf("Created %d memories", n-k), res.Message)
			})
		}
	}
}

func TestFoldKeepsOrderAndErrors(t *testing.T) {
	id := uuid.New()
	res := Fold([]Outcome{
		Failed("a", errors.New("embed failed")),
		Succeeded("b", &models.MemoryRecord{ID: id}),
		Failed("c", nil),
	})

	require.Len(t, res.Created, 1)
	assert.Equal(t, models.CreatedMemory{ID: id.String(), Fact: "b"}, res.Created[0])
	assert.Equal(t, []models.FailedMemory{
		{Fact: "a", Error: "embed failed"},
		{Fact: "c", Error: "unknown error"},
	}, res.Failures)
}

func TestOutcomeOK(t *testing.T) {
	assert.True(t, Succeeded("x", &models.MemoryRecord{}).OK())
	assert.False(t, Failed("x", errors.New("e")).OK())
	assert.False(t, Outcome{Fact: "x"}.OK())
}
