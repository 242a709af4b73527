package models

// Plan describes a purchasable access tier.
type Plan struct {
	BaseModel

	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	Description  string `json:"description"`
	DurationDays int    `gorm:"not null" json:"duration_days"`
	PriceCents   int64  `gorm:"not null" json:"price_cents"`
}
