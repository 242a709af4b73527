package models

// Group references an external Telegram group chat managed by this service.
type Group struct {
	BaseModel

	Title          string `gorm:"not null" json:"title"`
	TelegramChatID int64  `gorm:"uniqueIndex;not null" json:"telegram_chat_id"`
	Description    string `json:"description"`
}
