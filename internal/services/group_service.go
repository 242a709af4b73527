package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
)

// GroupInput carries the writable group fields.
type GroupInput struct {
	Title          string `json:"title" validate:"required"`
	TelegramChatID int64  `json:"telegram_chat_id" validate:"required"`
	Description    string `json:"description"`
}

// GroupService manages the registry of managed chat groups.
type GroupService struct {
	db *gorm.DB
}

// NewGroupService constructs a GroupService.
func NewGroupService(db *gorm.DB) (*GroupService, error) {
	if db == nil {
		return nil, errors.New("group service: db is required")
	}
	return &GroupService{db: db}, nil
}

// Create registers a managed group.
func (s *GroupService) Create(ctx context.Context, input GroupInput) (*models.Group, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidation("group title is required")
	}
	if input.TelegramChatID == 0 {
		return nil, apperrors.NewValidation("telegram_chat_id is required")
	}

	group := models.Group{
		Title:          strings.TrimSpace(input.Title),
		TelegramChatID: input.TelegramChatID,
		Description:    input.Description,
	}

	if err := s.db.WithContext(ctx).Create(&group).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrInvalidState.WithMessage(
				fmt.Sprintf("chat %d is already registered", input.TelegramChatID))
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("group: create: %w", err))
	}
	return &group, nil
}

// Get fetches a group by id.
func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	ctx = ensureContext(ctx)

	var group models.Group
	if err := s.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("group not found")
		}
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("group: get: %w", err))
	}
	return &group, nil
}

// List returns all registered groups ordered by title.
func (s *GroupService) List(ctx context.Context) ([]models.Group, error) {
	ctx = ensureContext(ctx)

	var groups []models.Group
	if err := s.db.WithContext(ctx).Order("title").Find(&groups).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("group: list: %w", err))
	}
	return groups, nil
}

// Update mutates a group's descriptive fields. The chat binding is immutable;
// re-pointing a registry entry at a different chat would silently orphan the
// members removed through it.
func (s *GroupService) Update(ctx context.Context, id string, title, description *string) (*models.Group, error) {
	ctx = ensureContext(ctx)

	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if title != nil {
		if strings.TrimSpace(*title) == "" {
			return nil, apperrors.NewValidation("group title cannot be empty")
		}
		changes["title"] = strings.TrimSpace(*title)
	}
	if description != nil {
		changes["description"] = *description
	}
	if len(changes) == 0 {
		return group, nil
	}

	if err := s.db.WithContext(ctx).Model(group).Updates(changes).Error; err != nil {
		return nil, apperrors.ErrPersistence.WithInternal(fmt.Errorf("group: update: %w", err))
	}
	return s.Get(ctx, id)
}

// Delete removes a group from the registry.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Group{}, "id = ?", id).Error; err != nil {
		return apperrors.ErrPersistence.WithInternal(fmt.Errorf("group: delete: %w", err))
	}
	return nil
}
