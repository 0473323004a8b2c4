package service

import (
	"fmt"
	"strings"

	"ethpoint/internal/model"

	"github.com/shopspring/decimal"
)

// PaymentMethodView is a payment method as shown to clients.
type PaymentMethodView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// Catalog is the read-only set of plans and payment methods.
type Catalog struct {
	plans     []model.Plan
	byID      map[string]model.Plan
	methods   []model.PaymentMethod
	addresses map[string]string
}

// NewCatalog validates plans and methods. Exactly one plan must be free and it must come first.
func NewCatalog(plans []model.Plan, methods []model.PaymentMethod, addresses map[string]string) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog needs at least one plan")
	}
	if !plans[0].IsFree() {
		return nil, fmt.Errorf("first plan %q must be the free tier", plans[0].ID)
	}

	byID := make(map[string]model.Plan, len(plans))
	free := 0
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan id is required")
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		if p.MaxQuota <= 0 {
			return nil, fmt.Errorf("plan %q: max quota must be positive", p.ID)
		}
		if p.RewardMultiplier.LessThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("plan %q: reward multiplier must be at least 1", p.ID)
		}
		if p.UpgradeCostPoints < 0 || p.PriceUSD.IsNegative() {
			return nil, fmt.Errorf("plan %q: cost and price must not be negative", p.ID)
		}
		if p.IsFree() {
			free++
		}
		byID[p.ID] = p
	}
	if free != 1 {
		return nil, fmt.Errorf("expected exactly one free plan, got %d", free)
	}

	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("duplicate payment method %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	addrs := make(map[string]string, len(addresses))
	for id, addr := range addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs[id] = addr
		}
	}

	return &Catalog{
		plans:     append([]model.Plan(nil), plans...),
		byID:      byID,
		methods:   append([]model.PaymentMethod(nil), methods...),
		addresses: addrs,
	}, nil
}

func (c *Catalog) Plans() []model.Plan {
	return append([]model.Plan(nil), c.plans...)
}

func (c *Catalog) Plan(id string) (model.Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return model.Plan{}, newError(KindInvalidPlan, "Unknown plan selected.")
	}
	return p, nil
}

func (c *Catalog) DefaultPlan() model.Plan {
	return c.plans[0]
}

// PlanOrDefault resolves id, falling back to the free tier for accounts that
// reference a plan no longer in the catalog.
func (c *Catalog) PlanOrDefault(id string) model.Plan {
	if p, ok := c.byID[id]; ok {
		return p
	}
	return c.DefaultPlan()
}

func (c *Catalog) PaymentMethods() []PaymentMethodView {
	views := make([]PaymentMethodView, 0, len(c.methods))
	for _, m := range c.methods {
		_, ok := c.addresses[m.ID]
		views = append(views, PaymentMethodView{ID: m.ID, Label: m.Label, Available: ok})
	}
	return views
}

// PayoutAddress returns the configured address for a payment method.
func (c *Catalog) PayoutAddress(methodID string) (string, error) {
	known := false
	for _, m := range c.methods {
		if m.ID == methodID {
			known = true
			break
		}
	}
	if !known {
		return "", newError(KindInvalidCurrency, "Unsupported cryptocurrency selection.")
	}
	addr, ok := c.addresses[methodID]
	if !ok {
		return "", newError(KindPaymentMethodUnavailable, "Payment option not configured yet. Please contact support.")
	}
	return addr, nil
}
