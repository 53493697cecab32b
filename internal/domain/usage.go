package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderGoogleSolar Provider = "GOOGLE_SOLAR"
	ProviderEagleView   Provider = "EAGLEVIEW"
)

// Per-call list prices in USD.
var (
	CostGeocode          = decimal.RequireFromString("0.005")
	CostBuildingInsights = decimal.RequireFromString("0.01")
	CostBasicReport      = decimal.RequireFromString("15.00")
	CostPremiumReport    = decimal.RequireFromString("30.00")
)

func ReportCost(rt ReportType) decimal.Decimal {
	switch rt {
	case ReportTypeBasic:
		return CostBasicReport
	case ReportTypePremium:
		return CostPremiumReport
	}
	return CostPremiumReport
}

type UsageEntry struct {
	ID             int64
	Provider       Provider
	Endpoint       string
	Method         string
	Cost           decimal.Decimal
	Address        string
	Success        bool
	ErrorMessage   string
	ResponseTimeMs int64
	Simulated      bool
	CreatedAt      time.Time
}

type ProviderUsage struct {
	Provider    Provider        `json:"provider"`
	Calls       int             `json:"calls"`
	FailedCalls int             `json:"failedCalls"`
	Cost        decimal.Decimal `json:"costUsd"`
}

type CostSummary struct {
	Providers   []ProviderUsage `json:"providers"`
	TotalCalls  int             `json:"totalCalls"`
	TotalCost   decimal.Decimal `json:"totalCostUsd"`
	BillingDay  string          `json:"billingDay"`
	TodayOrders int             `json:"todayOrders"`
	DailyLimit  int             `json:"dailyLimit"`
	LiveMode    bool            `json:"liveMode"`
}

// SummarizeUsage folds usage entries into per-provider totals. Providers are
// returned in first-seen order.
func SummarizeUsage(entries []UsageEntry) ([]ProviderUsage, int, decimal.Decimal) {
	index := map[Provider]int{}
	var out []ProviderUsage
	total := decimal.Zero
	for _, e := range entries {
		i, ok := index[e.Provider]
		if !ok {
			i = len(out)
			index[e.Provider] = i
			out = append(out, ProviderUsage{Provider: e.Provider, Cost: decimal.Zero})
		}
		out[i].Calls++
		if !e.Success {
			out[i].FailedCalls++
		}
		out[i].Cost = out[i].Cost.Add(e.Cost)
		total = total.Add(e.Cost)
	}
	return out, len(entries), total
}
