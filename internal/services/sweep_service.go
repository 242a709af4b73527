package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gmartins-dev/telegate/internal/models"
	apperrors "github.com/gmartins-dev/telegate/pkg/errors"
	"github.com/gmartins-dev/telegate/pkg/logger"
	"github.com/gmartins-dev/telegate/pkg/metrics"
)

// Audit actions written by the sweep.
const (
	auditActionRemoval      = "removal"
	auditActionRemovalError = "erro_remocao"
)

// SweepError describes one member the sweep could not revoke.
type SweepError struct {
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	Reason     string `json:"reason"`
}

// SweepResult summarises one expiration sweep run.
type SweepResult struct {
	Processed int          `json:"processed"`
	Removed   int          `json:"removed"`
	Failed    int          `json:"failed"`
	Errors    []SweepError `json:"errors,omitempty"`
}

// SweepOption customises the SweepService.
type SweepOption func(*SweepService)

// WithSweepClock overrides the clock used for the expiration predicate.
func WithSweepClock(now func() time.Time) SweepOption {
	return func(s *SweepService) {
		if now != nil {
			s.now = now
		}
	}
}

// SweepService revokes external group access for members past their deadline.
//
// The sweep is idempotent: the selection predicate (status = active AND
// access_until < now) excludes members a previous run already transitioned,
// so overlapping runs only ever repeat safe, per-member units of work.
type SweepService struct {
	db      *gorm.DB
	gateway ChatGateway
	audit   *AuditService
	log     *zap.Logger
	now     func() time.Time
}

// NewSweepService constructs a SweepService.
func NewSweepService(db *gorm.DB, gateway ChatGateway, audit *AuditService, opts ...SweepOption) (*SweepService, error) {
	if db == nil {
		return nil, errors.New("sweep service: db is required")
	}
	if gateway == nil {
		return nil, errors.New("sweep service: gateway is required")
	}
	if audit == nil {
		return nil, errors.New("sweep service: audit service is required")
	}

	service := &SweepService{
		db:      db,
		gateway: gateway,
		audit:   audit,
		log:     logger.WithModule("sweep"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// SweepExpired transitions every expired member to removed or removal_failed.
//
// Per-member gateway errors are recorded and never abort the batch; only a
// setup-phase query failure aborts the whole run. Cancellation stops the loop
// between members, leaving already-processed members in their final state.
func (s *SweepService) SweepExpired(ctx context.Context) (SweepResult, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var groups []models.Group
	if err := s.db.WithContext(ctx).Find(&groups).Error; err != nil {
		return SweepResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("sweep: load groups: %w", err))
	}

	var expired []models.Member
	if err := s.db.WithContext(ctx).
		Where("status = ? AND access_until < ?", models.MemberStatusActive, now).
		Order("access_until").
		Find(&expired).Error; err != nil {
		return SweepResult{}, apperrors.ErrPersistence.WithInternal(fmt.Errorf("sweep: select expired members: %w", err))
	}

	result := SweepResult{}

	for i := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		member := &expired[i]
		result.Processed++

		revokeErr := s.revokeExternalAccess(ctx, member, groups)
		if revokeErr != nil {
			if failErr := s.markRemovalFailed(ctx, member, revokeErr); failErr != nil {
				s.log.Error("sweep: persist removal failure", zap.String("member_id", member.ID), zap.Error(failErr))
				result.Failed++
				result.Errors = append(result.Errors, SweepError{MemberID: member.ID, MemberName: member.Name, Reason: failErr.Error()})
				continue
			}
			metrics.MembersRemoved.WithLabelValues(string(models.MemberStatusRemovalFailed)).Inc()
			result.Failed++
			result.Errors = append(result.Errors, SweepError{MemberID: member.ID, MemberName: member.Name, Reason: revokeErr.Error()})
			continue
		}

		if err := s.markRemoved(ctx, member); err != nil {
			// Member left untouched; the next run re-selects it.
			s.log.Error("sweep: persist removal", zap.String("member_id", member.ID), zap.Error(err))
			result.Failed++
			result.Errors = append(result.Errors, SweepError{MemberID: member.ID, MemberName: member.Name, Reason: err.Error()})
			continue
		}

		metrics.MembersRemoved.WithLabelValues(string(models.MemberStatusRemoved)).Inc()
		result.Removed++
	}

	s.log.Info("sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("removed", result.Removed),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// revokeExternalAccess kicks the member from every registered group. Members
// with no Telegram identity on record require no external action. A failure
// in one group does not skip the rest; all failures are reported together.
func (s *SweepService) revokeExternalAccess(ctx context.Context, member *models.Member, groups []models.Group) error {
	if member.TelegramUserID == nil {
		return nil
	}

	var errs error
	for _, group := range groups {
		if err := s.gateway.RevokeAccess(ctx, group.TelegramChatID, *member.TelegramUserID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("revoke access in %s: %w", group.Title, err))
		}
	}
	return errs
}

func (s *SweepService) markRemoved(ctx context.Context, member *models.Member) error {
	if err := s.db.WithContext(ctx).Model(member).
		Update("status", models.MemberStatusRemoved).Error; err != nil {
		return fmt.Errorf("sweep: update member %s: %w", member.ID, err)
	}

	// The log is observability, not correctness: a write failure must not
	// undo the completed transition.
	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionRemoval,
		MemberID: &member.ID,
		Actor:    ActorCron,
		Metadata: map[string]any{
			"removido_do_telegram": member.TelegramUserID != nil,
			"access_until":         member.AccessUntil,
		},
	}); err != nil {
		s.log.Warn("sweep: audit removal", zap.String("member_id", member.ID), zap.Error(err))
	}

	return nil
}

func (s *SweepService) markRemovalFailed(ctx context.Context, member *models.Member, cause error) error {
	notes := appendNote(member.Notes, fmt.Sprintf("[%s] remocao falhou: %v", s.now().Format(time.RFC3339), cause))

	if err := s.db.WithContext(ctx).Model(member).Updates(map[string]any{
		"status": models.MemberStatusRemovalFailed,
		"notes":  notes,
	}).Error; err != nil {
		return fmt.Errorf("sweep: update member %s: %w", member.ID, err)
	}

	if err := s.audit.Log(ctx, AuditEntry{
		Action:   auditActionRemovalError,
		MemberID: &member.ID,
		Actor:    ActorCron,
		Metadata: map[string]any{
			"erro":         cause.Error(),
			"access_until": member.AccessUntil,
		},
	}); err != nil {
		s.log.Warn("sweep: audit removal failure", zap.String("member_id", member.ID), zap.Error(err))
	}

	return nil
}

func appendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
