package automation

import (
	"fmt"
	"sort"
)

// Rule is the policy for one (category, action) pair.
type Rule struct {
	Category         Category   `json:"category"`
	Action           ActionKind `json:"action"`
	AutoExecute      bool       `json:"autoExecute"`
	RequiresApproval bool       `json:"requiresApproval"`
}

type ruleKey struct {
	category Category
	action   ActionKind
}

// RuleTable is an immutable lookup of rules.
type RuleTable struct {
	rules map[ruleKey]Rule
}

// NewRuleTable builds a table. Unknown actions and duplicate pairs are
// rejected.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	t := &RuleTable{rules: make(map[ruleKey]Rule, len(rules))}
	for i, r := range rules {
		if !r.Action.Valid() {
			return nil, fmt.Errorf("rule %d: %w", i, &UnknownActionError{Action: string(r.Action)})
		}
		if r.Category == "" {
			return nil, fmt.Errorf("rule %d: category is required", i)
		}
		k := ruleKey{r.Category, r.Action}
		if _, dup := t.rules[k]; dup {
			return nil, fmt.Errorf("rule %d: duplicate rule for %s/%s", i, r.Category, r.Action)
		}
		t.rules[k] = r
	}
	return t, nil
}

// Lookup returns the rule for (category, action).
func (t *RuleTable) Lookup(category Category, action ActionKind) (Rule, bool) {
	r, ok := t.rules[ruleKey{category, action}]
	return r, ok
}

// Rules returns all rules ordered by category then action.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// DefaultRules is the built-in policy. Routine reorders, tasks and
// notifications run on their own; spending beyond that needs a human.
func DefaultRules() []Rule {
	return []Rule{
		{Category: CategoryInventory, Action: ActionPlaceOrder, AutoExecute: true},
		{Category: CategoryInventory, Action: ActionEmergencyOrder, RequiresApproval: true},
		{Category: CategoryInventory, Action: ActionScheduleCampaign, RequiresApproval: true},
		{Category: CategoryInventory, Action: ActionSendNotification, AutoExecute: true},

		{Category: CategoryChurn, Action: ActionSendRetentionOffer, AutoExecute: true},
		{Category: CategoryChurn, Action: ActionCreateTask, AutoExecute: true},
		{Category: CategoryChurn, Action: ActionSendNotification, AutoExecute: true},
		{Category: CategoryChurn, Action: ActionScheduleCampaign, RequiresApproval: true},

		{Category: CategoryForecast, Action: ActionAdjustStaffing, RequiresApproval: true},
		{Category: CategoryForecast, Action: ActionPlaceOrder, RequiresApproval: true},
		{Category: CategoryForecast, Action: ActionScheduleCampaign, RequiresApproval: true},
		{Category: CategoryForecast, Action: ActionSendNotification, AutoExecute: true},

		{Category: CategoryMarketing, Action: ActionScheduleCampaign, RequiresApproval: true},
		{Category: CategoryMarketing, Action: ActionSendRetentionOffer, RequiresApproval: true},

		{Category: CategoryOperations, Action: ActionCreateTask, AutoExecute: true},
		{Category: CategoryOperations, Action: ActionSendNotification, AutoExecute: true},
	}
}
