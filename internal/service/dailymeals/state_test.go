package dailymeals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
)

func TestReconcileDependsOnlyOnCurrentSnapshot(t *testing.T) {
	now := time.Now()
	snapshots := [][]models.Document{
		{mealDoc("a", now, 100, 10, 10, 1)},
		{mealDoc("a", now, 100, 10, 10, 1), mealDoc("b", now, 250, 5, 40, 9)},
		{},
		{mealDoc("c", now, 70, 1, 2, 3)},
	}

	for i, docs := range snapshots {
		state, err := Reconcile(docs)
		require.NoError(t, err, "snapshot %d", i)

		var want models.DailyTotals
		for _, d := range docs {
			meal, err := models.MapMeal(d)
			require.NoError(t, err)
			want.Calories += meal.Calories
			want.Protein += meal.Protein
			want.Carbs += meal.Carbs
			want.Fat += meal.Fat
		}

		assert.Equal(t, StatusReady, state.Status)
		assert.Equal(t, want, state.Totals, "snapshot %d", i)
		assert.Len(t, state.Meals, len(docs))
	}
}

func TestReconcileRejectsMissingTimestamp(t *testing.T) {
	_, err := Reconcile([]models.Document{{ID: "x", Fields: map[string]any{}}})
	assert.ErrorIs(t, err, models.ErrInvalidTimestamp)
}
