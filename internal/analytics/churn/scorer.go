package churn

// Package churn scores how likely a customer is to stop ordering, using
// RFM-style features from the order history plus profile signals.

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tablewise/tablewise-insights/internal/models"
)

// Risk weights. They sum to 1.
const (
	weightRecency      = 0.30
	weightFrequency    = 0.25
	weightMonetary     = 0.15
	weightEngagement   = 0.15
	weightTrend        = 0.10
	weightSatisfaction = 0.05
)

// Risk level thresholds.
const (
	HighRiskThreshold   = 0.7
	MediumRiskThreshold = 0.4
)

const churnHorizonDays = 60

// Factor names.
const (
	FactorInactive            = "Inactive Customer"
	FactorLowFrequency        = "Low Order Frequency"
	FactorDecliningTrend      = "Declining Order Trend"
	FactorLowSatisfaction     = "Low Satisfaction"
	FactorLowEngagement       = "Low Engagement"
	FactorRepeatedComplaints  = "Repeated Complaints"
	maxRecommendations        = 3
	urgentRecommendationTitle = "Immediate Intervention"
)

// Options tunes the scorer.
type Options struct {
	WindowDays     int
	MaxConcurrency int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{WindowDays: 90, MaxConcurrency: 8}
}

// Scorer assesses churn risk. It keeps no state between calls.
type Scorer struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Scorer.
func New(opts Options, logger *zap.Logger) *Scorer {
	def := DefaultOptions()
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{opts: opts, logger: logger, now: time.Now}
}

// Assess scores customer as of now.
func (s *Scorer) Assess(ctx context.Context, customer models.CustomerProfile, orders []models.Order) (*Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.AssessAt(customer, orders, s.now())
}

// AssessAt scores customer as of asOf. It returns a nil assessment only for
// malformed input or an unexpected internal failure, which is logged.
func (s *Scorer) AssessAt(customer models.CustomerProfile, orders []models.Order, asOf time.Time) (a *Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Churn assessment failed",
				zap.String("customer_id", customer.ID),
				zap.Any("panic", r),
			)
			a, err = nil, fmt.Errorf("churn assessment for %s: internal error: %v", customer.ID, r)
		}
	}()

	features, err := ExtractFeatures(customer, orders, asOf, s.opts.WindowDays)
	if err != nil {
		return nil, err
	}
	return Evaluate(customer.ID, features), nil
}

// Evaluate turns features into an assessment.
func Evaluate(customerID string, f Features) *Assessment {
	score := RiskScore(f)
	level := LevelFor(score)

	factors := Factors(f)
	a := &Assessment{
		CustomerID:      customerID,
		RiskScore:       score,
		RiskLevel:       level,
		ChurnFactors:    factors,
		Recommendations: recommendations(level, factors),
		Features:        f,
	}
	if score >= MediumRiskThreshold {
		days := int(math.Floor((1 - score) * churnHorizonDays))
		a.DaysUntilChurn = &days
	}
	return a
}

// RiskScore is the weighted sum of the normalized sub-risks, in [0, 1].
func RiskScore(f Features) float64 {
	score := weightRecency*recencyRisk(f.Recency) +
		weightFrequency*frequencyRisk(f.Frequency) +
		weightMonetary*monetaryRisk(f.Monetary) +
		weightEngagement*(1-clamp01(f.EngagementScore)) +
		weightTrend*trendRisk(f.OrderTrend) +
		weightSatisfaction*satisfactionRisk(f.Satisfaction)
	return clamp01(score)
}

// LevelFor maps a score to its level.
func LevelFor(score float64) RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	}
	return RiskLow
}

func recencyRisk(days int) float64 {
	switch {
	case days > 60:
		return 1.0
	case days > 30:
		return 0.7
	case days > 14:
		return 0.4
	}
	return 0.1
}

func frequencyRisk(perMonth float64) float64 {
	switch {
	case perMonth < 0.5:
		return 1.0
	case perMonth < 1:
		return 0.7
	case perMonth < 2:
		return 0.4
	}
	return 0.1
}

func monetaryRisk(total float64) float64 {
	switch {
	case total < 50:
		return 1.0
	case total < 150:
		return 0.7
	case total < 300:
		return 0.4
	}
	return 0.1
}

func trendRisk(trend int) float64 {
	switch {
	case trend < 0:
		return 1.0
	case trend > 0:
		return 0.1
	}
	return 0.5
}

func satisfactionRisk(score float64) float64 {
	switch {
	case score < 2:
		return 1.0
	case score < 3:
		return 0.7
	case score < 4:
		return 0.4
	}
	return 0.1
}

// Factors lists the churn factors that fire for f, highest impact first.
func Factors(f Features) []Factor {
	var out []Factor
	if f.Recency > 30 {
		factor := Factor{Factor: FactorInactive, Severity: SeverityMedium, Impact: 0.7}
		if f.Recency > 60 {
			factor.Severity, factor.Impact = SeverityHigh, 0.9
		}
		if f.Recency == noOrderRecency {
			factor.Description = "No orders on record"
		} else {
			factor.Description = fmt.Sprintf("No orders in the last %d days", f.Recency)
		}
		out = append(out, factor)
	}
	if f.Frequency < 1 {
		out = append(out, Factor{
			Factor:      FactorLowFrequency,
			Severity:    SeverityMedium,
			Impact:      0.6,
			Description: fmt.Sprintf("%.1f orders per month", f.Frequency),
		})
	}
	if f.OrderTrend < 0 {
		out = append(out, Factor{
			Factor:      FactorDecliningTrend,
			Severity:    SeverityMedium,
			Impact:      0.5,
			Description: "Recent order values are falling",
		})
	}
	if f.Satisfaction < 3 {
		out = append(out, Factor{
			Factor:      FactorLowSatisfaction,
			Severity:    SeverityHigh,
			Impact:      0.7,
			Description: fmt.Sprintf("Satisfaction score %.1f", f.Satisfaction),
		})
	}
	if f.EngagementScore < 0.3 {
		out = append(out, Factor{
			Factor:      FactorLowEngagement,
			Severity:    SeverityMedium,
			Impact:      0.4,
			Description: "Little interaction with email or app",
		})
	}
	if f.Complaints >= 2 {
		out = append(out, Factor{
			Factor:      FactorRepeatedComplaints,
			Severity:    SeverityHigh,
			Impact:      0.5,
			Description: fmt.Sprintf("%d complaints filed", f.Complaints),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impact > out[j].Impact })
	return out
}

var factorRecommendations = map[string]Recommendation{
	FactorInactive: {
		Priority:    "high",
		Title:       "Win-Back Offer",
		Description: "Send a time-limited discount to bring the customer back",
		Action:      "send_retention_offer",
	},
	FactorLowFrequency: {
		Priority:    "medium",
		Title:       "Loyalty Incentive",
		Description: "Enroll the customer in a visit-based loyalty campaign",
		Action:      "schedule_campaign",
	},
	FactorDecliningTrend: {
		Priority:    "medium",
		Title:       "Personalized Outreach",
		Description: "Recommend favorite dishes and new menu items",
		Action:      "send_notification",
	},
	FactorLowSatisfaction: {
		Priority:    "high",
		Title:       "Service Recovery",
		Description: "Have a manager follow up on the last experience",
		Action:      "create_task",
	},
	FactorLowEngagement: {
		Priority:    "medium",
		Title:       "Re-engagement Campaign",
		Description: "Target the customer with an app and email campaign",
		Action:      "schedule_campaign",
	},
	FactorRepeatedComplaints: {
		Priority:    "high",
		Title:       "Complaint Review",
		Description: "Review open complaints and resolve them personally",
		Action:      "create_task",
	},
}

func recommendations(level RiskLevel, factors []Factor) []Recommendation {
	recs := make([]Recommendation, 0, maxRecommendations)
	if level == RiskHigh {
		recs = append(recs, Recommendation{
			Priority:    "urgent",
			Title:       urgentRecommendationTitle,
			Description: "Contact the customer personally within 24 hours",
			Action:      "create_task",
		})
	}
	for _, f := range factors {
		if len(recs) >= maxRecommendations {
			break
		}
		if rec, ok := factorRecommendations[f.Factor]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
