// Package telegram wraps the administrative surface of the Telegram Bot API
// used to manage paid group membership: kicking members, issuing single-use
// invite links, and revoking them.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"

	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 1 << 20 // prevent unbounded reads from API responses
)

// Client is a thin HTTP wrapper around the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Telegram Bot API client. An empty baseURL selects
// the public API endpoint.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a JSON POST request to the given Bot API method and decodes the
// response. 429 responses are retried honouring Retry-After, up to maxRetries.
func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var data []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
		data = encoded
	}

	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Wrap without the raw URL to avoid leaking the bot token in logs.
			return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			var apiResp APIResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		var apiResp APIResponse[T]
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
		}

		if !apiResp.OK {
			apiErr := &APIError{
				Code:        apiResp.ErrorCode,
				Description: apiResp.Description,
			}
			if apiResp.Parameters != nil {
				apiErr.RetryAfter = apiResp.Parameters.RetryAfter
			}
			return nil, apiErr
		}

		return &apiResp.Result, nil
	}

	return nil, fmt.Errorf("telegram: %s: max retries exceeded", method)
}

// banChatMemberRequest is the request body for the banChatMember method.
type banChatMemberRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// unbanChatMemberRequest is the request body for the unbanChatMember method.
type unbanChatMemberRequest struct {
	ChatID       int64 `json:"chat_id"`
	UserID       int64 `json:"user_id"`
	OnlyIfBanned bool  `json:"only_if_banned,omitempty"`
}

// createChatInviteLinkRequest is the request body for the createChatInviteLink method.
type createChatInviteLinkRequest struct {
	ChatID      int64  `json:"chat_id"`
	Name        string `json:"name,omitempty"`
	MemberLimit int    `json:"member_limit,omitempty"`
}

// revokeChatInviteLinkRequest is the request body for the revokeChatInviteLink method.
type revokeChatInviteLinkRequest struct {
	ChatID     int64  `json:"chat_id"`
	InviteLink string `json:"invite_link"`
}

// sendMessageRequest is the request body for the sendMessage method.
type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// GetMe returns the bot's user information. Used as a connectivity probe.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// RevokeAccess removes a user from the chat. The ban is immediately lifted so
// the user can rejoin later through a fresh invite link after renewing.
func (c *Client) RevokeAccess(ctx context.Context, chatID, userID int64) error {
	if _, err := do[bool](ctx, c, "banChatMember", banChatMemberRequest{ChatID: chatID, UserID: userID}); err != nil {
		return err
	}
	_, err := do[bool](ctx, c, "unbanChatMember", unbanChatMemberRequest{ChatID: chatID, UserID: userID, OnlyIfBanned: true})
	return err
}

// CreateSingleUseInvite creates an invite link limited to exactly one
// redemption. The link carries no time expiry: expiry is enforced by the
// grant's own lifecycle, not by Telegram.
func (c *Client) CreateSingleUseInvite(ctx context.Context, chatID int64, name string) (string, error) {
	link, err := do[ChatInviteLink](ctx, c, "createChatInviteLink", createChatInviteLinkRequest{
		ChatID:      chatID,
		Name:        name,
		MemberLimit: 1,
	})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// RevokeInvite revokes a previously created invite link.
func (c *Client) RevokeInvite(ctx context.Context, chatID int64, inviteLink string) error {
	_, err := do[ChatInviteLink](ctx, c, "revokeChatInviteLink", revokeChatInviteLinkRequest{
		ChatID:     chatID,
		InviteLink: inviteLink,
	})
	return err
}

// SendMessage sends a plain-text direct message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := do[Message](ctx, c, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text})
	return err
}
