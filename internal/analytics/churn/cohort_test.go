package churn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise-insights/internal/models"
)

func TestAnalyzeCohorts(t *testing.T) {
	var loyal []models.Order
	for ago := 1; ago < 90; ago += 4 {
		loyal = append(loyal, order(ago, 35))
	}
	customers := []CustomerHistory{
		{Customer: models.CustomerProfile{ID: "a", JoinedDate: "2024-01-05"}, Orders: loyal},
		{Customer: models.CustomerProfile{ID: "b", JoinedDate: "2024-01-20"}},
		{Customer: models.CustomerProfile{ID: "c", JoinedDate: "2024-02-11T09:30:00Z"}, Orders: []models.Order{order(40, 30)}},
		{Customer: models.CustomerProfile{ID: "d"}},
	}

	cohorts, err := New(DefaultOptions(), nil).AnalyzeCohorts(context.Background(), customers, asOf)
	require.NoError(t, err)
	require.Len(t, cohorts, 3)

	assert.Equal(t, "2024-01", cohorts[0].Cohort)
	assert.Equal(t, "2024-02", cohorts[1].Cohort)
	assert.Equal(t, UnknownCohort, cohorts[2].Cohort)

	jan := cohorts[0]
	assert.Equal(t, 2, jan.Size)
	assert.Equal(t, 1, jan.Distribution[RiskLow])
	assert.Equal(t, 1, jan.Distribution[RiskHigh])
	assert.Equal(t, 0, jan.Distribution[RiskMedium])
	assert.Contains(t, jan.TopFactors, FactorInactive)
	assert.Greater(t, jan.AverageRisk, 0.0)
	assert.Less(t, jan.AverageRisk, 1.0)

	for _, c := range cohorts {
		total := 0
		for _, n := range c.Distribution {
			total += n
		}
		assert.Equal(t, c.Size, total)
		assert.LessOrEqual(t, len(c.TopFactors), topCohortFactors)
	}
}

func TestAnalyzeCohorts_PropagatesValidationError(t *testing.T) {
	customers := []CustomerHistory{
		{Customer: models.CustomerProfile{ID: "ok"}},
		{Customer: models.CustomerProfile{ID: "bad"}, Orders: []models.Order{{Date: "not-a-date"}}},
	}
	_, err := New(DefaultOptions(), nil).AnalyzeCohorts(context.Background(), customers, asOf)
	require.Error(t, err)

	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "customer bad")
}

func TestTopFactors(t *testing.T) {
	got := topFactors(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, []string{"c", "a", "b"}, got)
}
