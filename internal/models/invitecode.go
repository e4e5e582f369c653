package models

import "time"

// InviteCode is an invitation code record owned by the registry. The admission
// gate only reads it and bumps UsageCount.
type InviteCode struct {
	ID         string     `gorm:"primarykey" json:"id"`
	Code       string     `gorm:"index" json:"code"`
	IsActive   bool       `json:"isActive"`
	UsageLimit *uint      `json:"usageLimit"` // nil means unlimited
	UsageCount uint       `json:"usageCount"`
	ExpiresAt  *time.Time `json:"expiresAt"` // nil means never expires
	Note       string     `json:"note"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ExpiredAt reports whether the code expired strictly before now.
func (c *InviteCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

func (c *InviteCode) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}
