package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of every state-changing operation.
//
// MemberID is a weak reference kept for lookups only: there is deliberately no
// foreign key constraint so that deleting a member never cascades into its
// history.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	Action    string         `gorm:"not null;index" json:"action"`
	MemberID  *string        `gorm:"type:uuid;index" json:"member_id"`
	Actor     string         `gorm:"not null" json:"actor"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
