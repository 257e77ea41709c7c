package models

import "time"

// UsageType is one of the monthly counters tracked per user against the
// subscription plan.
type UsageType string

const (
	UsageSent      UsageType = "sent"
	UsageScheduled UsageType = "scheduled"
	UsageAccounts  UsageType = "accounts"
	UsageAI        UsageType = "ai"
)

var AllUsageTypes = []UsageType{UsageSent, UsageScheduled, UsageAccounts, UsageAI}

// PlanUsage is one active ledger row: the running count for one usage
// type within one billing period. 0 <= Used <= Limit is enforced by a
// clamped UPDATE in the repository.
type PlanUsage struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	PlanID      string    `db:"plan_id" json:"plan_id"`
	UsageType   UsageType `db:"usage_type" json:"usage_type"`
	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
	Used        int       `db:"used" json:"used"`
	Limit       int       `db:"usage_limit" json:"limit"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PlanLimits is the per-period allowance of one catalog plan.
type PlanLimits struct {
	Sent      int
	Scheduled int
	Accounts  int
	AI        int
}

func (l PlanLimits) For(t UsageType) int {
	switch t {
	case UsageSent:
		return l.Sent
	case UsageScheduled:
		return l.Scheduled
	case UsageAccounts:
		return l.Accounts
	case UsageAI:
		return l.AI
	}
	return 0
}

const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
)

// PlanCatalog is static, matching the products configured in billing.
var PlanCatalog = map[string]PlanLimits{
	PlanFree:    {Sent: 10, Scheduled: 10, Accounts: 2, AI: 5},
	PlanStarter: {Sent: 120, Scheduled: 120, Accounts: 5, AI: 100},
	PlanPro:     {Sent: 1000, Scheduled: 1000, Accounts: 15, AI: 500},
}

func LimitsForPlan(planID string) PlanLimits {
	if l, ok := PlanCatalog[planID]; ok {
		return l
	}
	return PlanCatalog[PlanFree]
}
