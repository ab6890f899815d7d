package schemas

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseStatusTransitions(t *testing.T) {
	cases := []struct {
		from    PurchaseStatus
		to      PurchaseStatus
		allowed bool
	}{
		{StatusCreated, StatusProcessing, true},
		{StatusCreated, StatusCompleted, false},
		{StatusCreated, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCreated, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestPurchaseStatusTerminal(t *testing.T) {
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestStepsMerge(t *testing.T) {
	t.Run("should replace only the written key", func(t *testing.T) {
		base := Steps{
			StepNavigate:  {Status: StepInfo, Content: "landed"},
			StepAddToCart: {Status: StepInfo, Content: "added"},
		}
		out := base.Merge(StepAddToCart, Step{Status: StepError, Content: "retry failed"})

		assert.Len(t, out, 2)
		assert.Equal(t, "landed", out[StepNavigate].Content)
		assert.Equal(t, StepError, out[StepAddToCart].Status)
		// The original map is untouched.
		assert.Equal(t, StepInfo, base[StepAddToCart].Status)
	})

	t.Run("should add new keys to a nil map", func(t *testing.T) {
		var base Steps
		out := base.Merge(StepFillForm, Step{Status: StepInfo, Content: "filled"})
		require.Len(t, out, 1)
		assert.Equal(t, "filled", out[StepFillForm].Content)
	})
}

func TestPurchaseRecordSnapshot(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	completed := created.Add(2 * time.Minute)
	rec := &PurchaseRecord{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		ProductURL: "https://shop.example.com/widget",
		Status:     StatusCompleted,
		Steps: Steps{
			StepNavigate: {Status: StepInfo, Content: "landed", Timestamp: created},
		},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
	}

	snap := rec.Snapshot()

	assert.Equal(t, rec.ID.String(), snap["id"])
	assert.Equal(t, rec.UserID.String(), snap["user_id"])
	assert.Equal(t, "completed", snap["status"])
	assert.Equal(t, "2026-03-14T09:26:53Z", snap["created_at"])
	assert.Equal(t, "2026-03-14T09:28:53Z", snap["completed_at"])
	assert.NotContains(t, snap, "error")

	steps, ok := snap["steps"].(map[string]any)
	require.True(t, ok)
	nav, ok := steps[StepNavigate].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "info", nav["status"])
	assert.Equal(t, "landed", nav["content"])
}

func TestPurchaseRecordSnapshotOmitsEmpty(t *testing.T) {
	rec := &PurchaseRecord{ID: uuid.New(), UserID: uuid.New(), Status: StatusFailed, Error: "card declined"}
	snap := rec.Snapshot()
	assert.Equal(t, "card declined", snap["error"])
	assert.NotContains(t, snap, "steps")
	assert.NotContains(t, snap, "completed_at")
}
