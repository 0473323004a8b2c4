package model

import (
	"time"
)

const (
	RoleStandard = "standard"
	RoleAdmin    = "admin"
)

func ValidRole(role string) bool {
	return role == RoleStandard || role == RoleAdmin
}

// Account holds a player's points, cash and tap quota.
// QuotaRemaining stays within [0, plan.MaxQuota]; the window is refreshed lazily on access.
type Account struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username             string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"` // stored lower-case
	PasswordHash         string    `gorm:"type:varchar(255);not null" json:"-"`
	PointsBalance        int64     `gorm:"not null;default:0" json:"points_balance"`
	CashBalance          int64     `gorm:"not null;default:0" json:"cash_balance"`
	QuotaRemaining       int64     `gorm:"not null;default:0" json:"quota_remaining"`
	PlanID               string    `gorm:"type:varchar(32);not null" json:"plan_id"`
	QuotaWindowStartedAt time.Time `gorm:"not null" json:"quota_window_started_at"`
	Role                 string    `gorm:"type:varchar(16);not null;default:standard" json:"role"`
	CreatedAt            time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ApplyPlan moves the account onto plan with a full quota and a fresh window starting at now.
func (a *Account) ApplyPlan(plan Plan, now time.Time) {
	a.PlanID = plan.ID
	a.QuotaRemaining = plan.MaxQuota
	a.QuotaWindowStartedAt = now
}
