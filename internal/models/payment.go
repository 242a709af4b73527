package models

import (
	"fmt"
	"time"
)

// PaymentStatus enumerates the states of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Valid reports whether the status is one of the known payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	}
	return false
}

func (s PaymentStatus) String() string { return string(s) }

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
	return status, nil
}

// Payment records a single payment made by a member.
type Payment struct {
	BaseModel

	MemberID string  `gorm:"type:uuid;not null;index" json:"member_id"`
	Member   *Member `json:"member,omitempty"`

	PlanID *string `gorm:"type:uuid" json:"plan_id"`
	Plan   *Plan   `json:"plan,omitempty"`

	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	Method      string        `json:"method"`
	Status      PaymentStatus `gorm:"not null;default:pending;index" json:"status"`
	ReceiptPath string        `json:"receipt_path"`
	ApprovedAt  *time.Time    `json:"approved_at"`
}
