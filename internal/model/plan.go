package model

import (
	"github.com/shopspring/decimal"
)

func init() {
	// multipliers and prices go over the wire as numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	PlanFree     = "free"
	PlanSilver   = "silver"
	PlanGold     = "gold"
	PlanPlatinum = "platinum"
)

// Plan is a subscription tier. Plans are static configuration and are never persisted;
// accounts and payment requests reference them by ID.
type Plan struct {
	ID                string          `json:"id"`
	Label             string          `json:"label"`
	Description       string          `json:"description"`
	MaxQuota          int64           `json:"max_quota"`
	RewardMultiplier  decimal.Decimal `json:"reward_multiplier"`
	UpgradeCostPoints int64           `json:"upgrade_cost_points"`
	PriceUSD          decimal.Decimal `json:"price_usd"`
}

// IsFree reports whether the plan is the default tier: no points cost and no price.
func (p Plan) IsFree() bool {
	return p.UpgradeCostPoints == 0 && p.PriceUSD.IsZero()
}

// Reward converts consumed taps into points, rounding half up.
func (p Plan) Reward(taps int64) int64 {
	if taps <= 0 {
		return 0
	}
	return decimal.NewFromInt(taps).Mul(p.RewardMultiplier).Round(0).IntPart()
}

func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:                PlanFree,
			Label:             "Free",
			Description:       "Start earning points with the base plan.",
			MaxQuota:          1000,
			RewardMultiplier:  decimal.NewFromInt(1),
			UpgradeCostPoints: 0,
			PriceUSD:          decimal.Zero,
		},
		{
			ID:                PlanSilver,
			Label:             "Silver",
			Description:       "Unlock 2.5k taps and a 25% reward boost.",
			MaxQuota:          2500,
			RewardMultiplier:  decimal.RequireFromString("1.25"),
			UpgradeCostPoints: 5000,
			PriceUSD:          decimal.NewFromInt(25),
		},
		{
			ID:                PlanGold,
			Label:             "Gold",
			Description:       "Go big with 5k taps and 50% more rewards.",
			MaxQuota:          5000,
			RewardMultiplier:  decimal.RequireFromString("1.5"),
			UpgradeCostPoints: 15000,
			PriceUSD:          decimal.NewFromInt(60),
		},
		{
			ID:                PlanPlatinum,
			Label:             "Platinum",
			Description:       "Maximise with 10k taps and double rewards.",
			MaxQuota:          10000,
			RewardMultiplier:  decimal.NewFromInt(2),
			UpgradeCostPoints: 40000,
			PriceUSD:          decimal.NewFromInt(120),
		},
	}
}

// PaymentMethod is a cryptocurrency a paid plan can be settled with.
type PaymentMethod struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func DefaultPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{ID: "usdt-bep20", Label: "USDT (BEP20/BSC)"},
		{ID: "usdt-trc20", Label: "USDT (TRC20/TRON)"},
		{ID: "usdc-erc20", Label: "USDC (ERC20)"},
		{ID: "bnb-bep20", Label: "BNB (BEP20/BSC)"},
	}
}
