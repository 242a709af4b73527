package models

import (
	"fmt"
	"time"
)

// GrantStatus enumerates the states of an issued invite artifact.
type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusUsed    GrantStatus = "used"
	GrantStatusRevoked GrantStatus = "revoked"
)

// Valid reports whether the status is one of the known grant states.
func (s GrantStatus) Valid() bool {
	switch s {
	case GrantStatusActive, GrantStatusUsed, GrantStatusRevoked:
		return true
	}
	return false
}

func (s GrantStatus) String() string { return string(s) }

// ParseGrantStatus converts raw input into a GrantStatus.
func ParseGrantStatus(raw string) (GrantStatus, error) {
	status := GrantStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown grant status %q", raw)
	}
	return status, nil
}

// AccessGrant is the single-use invite artifact issued after payment approval.
//
// Member and payment terms are copied onto the grant at issuance time so that
// later edits to member, plan, or payment records cannot retroactively alter
// an already-issued entitlement.
type AccessGrant struct {
	BaseModel

	PaymentID string   `gorm:"type:uuid;not null;index" json:"payment_id"`
	Payment   *Payment `json:"payment,omitempty"`

	MemberID string  `gorm:"type:uuid;not null;index" json:"member_id"`
	Member   *Member `json:"member,omitempty"`

	GroupID string `gorm:"type:uuid;not null;index" json:"group_id"`
	Group   *Group `json:"group,omitempty"`

	InviteLink string      `gorm:"not null" json:"invite_link"`
	Status     GrantStatus `gorm:"not null;default:active;index" json:"status"`
	Used       bool        `gorm:"default:false" json:"used"`
	UsedAt     *time.Time  `json:"used_at"`
	SingleUse  bool        `gorm:"default:true" json:"single_use"`

	// Snapshot of the grant terms captured at issuance.
	MemberName    string `json:"member_name"`
	DurationDays  int    `json:"duration_days"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
}
