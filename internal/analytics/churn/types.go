package churn

import "github.com/tablewise/tablewise-insights/internal/models"

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Severity grades a single churn factor.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Features are the behavioral signals derived from a customer's history.
type Features struct {
	Recency         int     `json:"recency"`
	Frequency       float64 `json:"frequency"`
	Monetary        float64 `json:"monetary"`
	AvgOrderValue   float64 `json:"avgOrderValue"`
	EngagementScore float64 `json:"engagementScore"`
	OrderTrend      int     `json:"orderTrend"`
	CustomerTenure  int     `json:"customerTenure"`
	Satisfaction    float64 `json:"satisfaction"`
	Complaints      int     `json:"complaints"`
}

// Factor is one reason a customer may churn.
type Factor struct {
	Factor      string   `json:"factor"`
	Severity    Severity `json:"severity"`
	Impact      float64  `json:"impact"`
	Description string   `json:"description"`
}

// Recommendation is a retention step. Action names the automation action
// that carries it out.
type Recommendation struct {
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// Assessment is the churn verdict for one customer.
type Assessment struct {
	CustomerID      string           `json:"customerId"`
	RiskScore       float64          `json:"riskScore"`
	RiskLevel       RiskLevel        `json:"riskLevel"`
	ChurnFactors    []Factor         `json:"churnFactors"`
	Recommendations []Recommendation `json:"recommendations"`
	DaysUntilChurn  *int             `json:"daysUntilChurn"`
	Features        Features         `json:"features"`
}

// HasFactor reports whether the named factor fired.
func (a *Assessment) HasFactor(name string) bool {
	for _, f := range a.ChurnFactors {
		if f.Factor == name {
			return true
		}
	}
	return false
}

// CustomerHistory pairs a profile with its orders for batch scoring.
type CustomerHistory struct {
	Customer models.CustomerProfile `json:"customer"`
	Orders   []models.Order         `json:"orders"`
}

// Cohort aggregates assessments of customers who joined in the same month.
type Cohort struct {
	Cohort       string            `json:"cohort"`
	Size         int               `json:"size"`
	AverageRisk  float64           `json:"averageRisk"`
	Distribution map[RiskLevel]int `json:"distribution"`
	TopFactors   []string          `json:"topFactors"`
}
