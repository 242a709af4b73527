package services

import "context"

// ChatGateway is the administrative boundary of the external messaging
// platform. Implemented by the Telegram client; faked in tests.
type ChatGateway interface {
	// RevokeAccess removes the user from the chat so they can no longer read
	// or post. Implementations must leave the user able to rejoin through a
	// fresh invite link.
	RevokeAccess(ctx context.Context, chatID, userID int64) error

	// CreateSingleUseInvite returns an invite link limited to one redemption
	// and no time expiry.
	CreateSingleUseInvite(ctx context.Context, chatID int64, name string) (string, error)

	// RevokeInvite invalidates a previously issued invite link.
	RevokeInvite(ctx context.Context, chatID int64, link string) error
}

// Messenger delivers direct messages on the external platform.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}
