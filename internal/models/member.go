package models

import (
	"fmt"
	"time"
)

// MemberStatus enumerates the durable lifecycle states of a member.
//
// "Expired" is deliberately not a status: it is derived from AccessUntil and
// the current clock so that the expiration sweep can re-evaluate membership
// without a separate state transition having happened first.
type MemberStatus string

const (
	MemberStatusActive        MemberStatus = "active"
	MemberStatusRemoved       MemberStatus = "removed"
	MemberStatusPaused        MemberStatus = "paused"
	MemberStatusRemovalFailed MemberStatus = "removal_failed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusActive, MemberStatusRemoved, MemberStatusPaused, MemberStatusRemovalFailed:
		return true
	}
	return false
}

func (s MemberStatus) String() string { return string(s) }

// ParseMemberStatus converts raw input into a MemberStatus.
func ParseMemberStatus(raw string) (MemberStatus, error) {
	status := MemberStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown member status %q", raw)
	}
	return status, nil
}

// Member is an entity entitled to external-platform group access for a bounded period.
type Member struct {
	BaseModel

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"index" json:"email"`
	Phone string `json:"phone"`

	TelegramUserID   *int64 `gorm:"index" json:"telegram_user_id"`
	TelegramUsername string `json:"telegram_username"`

	AccessUntil time.Time    `gorm:"index;not null" json:"access_until"`
	Status      MemberStatus `gorm:"not null;default:active;index" json:"status"`
	Notes       string       `json:"notes"`

	PlanID *string `gorm:"type:uuid" json:"plan_id"`
	Plan   *Plan   `json:"plan,omitempty"`
}

// Expired reports whether the member's access has lapsed relative to now.
// Only active members can be expired; removed/paused members are out of scope.
func (m *Member) Expired(now time.Time) bool {
	return m.Status == MemberStatusActive && m.AccessUntil.Before(now)
}
