package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// SettingsCache holds a time-boxed copy of the settings record. Set keeps
// whichever record has the newer UpdatedAt, so a read that raced a write
// cannot put the older record back. Writes through ConfigService store the
// new record and fall back to Invalidate when that fails.
type SettingsCache interface {
	Get(ctx context.Context) (*domain.ConfigRecord, error)
	Set(ctx context.Context, rec domain.ConfigRecord) error
	Invalidate(ctx context.Context) error
}

// ConfigService reads and updates the claim settings.
type ConfigService struct {
	configs      repository.ConfigRepository
	cache        SettingsCache
	defaultLimit int
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	now          func() time.Time
}

// ConfigDependencies bundles collaborators for the config service.
type ConfigDependencies struct {
	ConfigRepo   repository.ConfigRepository
	Cache        SettingsCache
	DefaultLimit int
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Clock        func() time.Time
}

// NewConfigService constructs the service. A nil cache reads the store every time.
func NewConfigService(deps ConfigDependencies) *ConfigService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	limit := deps.DefaultLimit
	if limit < 0 {
		limit = domain.DefaultClaimLimit
	}
	return &ConfigService{
		configs:      deps.ConfigRepo,
		cache:        deps.Cache,
		defaultLimit: limit,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		now:          clock,
	}
}

// Settings returns the stored settings, or the defaults when none are stored.
func (s *ConfigService) Settings(ctx context.Context) (domain.ConfigRecord, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("settings cache read failed", zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	rec, err := s.load(ctx)
	if err != nil {
		return domain.ConfigRecord{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return rec, nil
}

// SetClaimLimit stores a new claim limit. Negative values are rejected and
// leave the stored limit unchanged.
func (s *ConfigService) SetClaimLimit(ctx context.Context, actorID string, limit int) (domain.ConfigRecord, error) {
	if limit < 0 {
		return domain.ConfigRecord{}, apperrors.NewValidationError("The claim limit cannot be negative.",
			map[string]any{"claim_limit": limit})
	}

	rec, err := s.load(ctx)
	if err != nil {
		return domain.ConfigRecord{}, err
	}
	oldLimit := rec.ClaimLimit
	rec.ClaimLimit = limit
	if err := s.save(ctx, &rec); err != nil {
		return domain.ConfigRecord{}, err
	}

	s.publishEvent(ctx, events.Event{
		Type:  events.EventClaimLimitChanged,
		Actor: events.Actor{Source: events.SourceCommand, AgentID: &actorID},
		Payload: events.ClaimLimitChangedPayload{
			OldLimit: oldLimit,
			NewLimit: limit,
		},
	})
	return rec, nil
}

// SetEnforceOnClaim toggles whether the plain claim command checks the limit.
func (s *ConfigService) SetEnforceOnClaim(ctx context.Context, enforce bool) (domain.ConfigRecord, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return domain.ConfigRecord{}, err
	}
	rec.EnforceOnClaim = enforce
	if err := s.save(ctx, &rec); err != nil {
		return domain.ConfigRecord{}, err
	}
	return rec, nil
}

func (s *ConfigService) load(ctx context.Context) (domain.ConfigRecord, error) {
	rec, err := s.configs.Get(ctx, domain.SettingsKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.DefaultConfig(s.defaultLimit), nil
		}
		return domain.ConfigRecord{}, fmt.Errorf("load settings: %w", err)
	}
	return *rec, nil
}

func (s *ConfigService) save(ctx context.Context, rec *domain.ConfigRecord) error {
	rec.Key = domain.SettingsKey
	// Postgres keeps microseconds; the cached version must match what a later read returns.
	rec.UpdatedAt = s.now().Truncate(time.Microsecond)
	if err := s.configs.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, *rec); err != nil {
		s.logger.Warn("settings cache refresh failed", zap.Error(err))
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("settings cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}

func (s *ConfigService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	_ = s.dispatcher.Publish(ctx, event)
}
