package churn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tablewise/tablewise-insights/internal/models"
)

// UnknownCohort collects customers without a join date.
const UnknownCohort = "unknown"

const topCohortFactors = 3

// AnalyzeCohorts scores every customer as of asOf and aggregates the
// results by join month. Cohorts are returned in key order.
func (s *Scorer) AnalyzeCohorts(ctx context.Context, customers []CustomerHistory, asOf time.Time) ([]Cohort, error) {
	assessments := make([]*Assessment, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for i := range customers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := s.AssessAt(customers[i].Customer, customers[i].Orders, asOf)
			if err != nil {
				return fmt.Errorf("customer %s: %w", customers[i].Customer.ID, err)
			}
			assessments[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type accumulator struct {
		riskSum      float64
		size         int
		distribution map[RiskLevel]int
		factors      map[string]int
	}
	groups := make(map[string]*accumulator)
	for i, a := range assessments {
		key := cohortKey(customers[i].Customer.JoinedDate)
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{
				distribution: map[RiskLevel]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0},
				factors:      make(map[string]int),
			}
			groups[key] = acc
		}
		acc.size++
		acc.riskSum += a.RiskScore
		acc.distribution[a.RiskLevel]++
		for _, f := range a.ChurnFactors {
			acc.factors[f.Factor]++
		}
	}

	cohorts := make([]Cohort, 0, len(groups))
	for key, acc := range groups {
		cohorts = append(cohorts, Cohort{
			Cohort:       key,
			Size:         acc.size,
			AverageRisk:  acc.riskSum / float64(acc.size),
			Distribution: acc.distribution,
			TopFactors:   topFactors(acc.factors, topCohortFactors),
		})
	}
	sort.Slice(cohorts, func(i, j int) bool { return cohorts[i].Cohort < cohorts[j].Cohort })

	s.logger.Debug("Cohorts analyzed",
		zap.Int("customers", len(customers)),
		zap.Int("cohorts", len(cohorts)),
	)
	return cohorts, nil
}

func cohortKey(joined string) string {
	if joined == "" {
		return UnknownCohort
	}
	t, err := models.ParseDate(joined)
	if err != nil {
		return UnknownCohort
	}
	return t.Format("2006-01")
}

// topFactors returns up to n factor names by descending count, ties broken
// by name.
func topFactors(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
