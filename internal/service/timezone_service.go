package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimeZoneService resolves a user's zone from the store on every call. Zones
// are never cached because a user may change theirs at any time.
type TimeZoneService struct {
	repo     TimeZoneStore
	fallback model.TimeZone
	logger   *zap.Logger
}

func NewTimeZoneService(repo TimeZoneStore, fallback model.TimeZone, logger *zap.Logger) *TimeZoneService {
	return &TimeZoneService{repo: repo, fallback: fallback, logger: logger}
}

// Default возвращает зону по умолчанию из конфигурации
func (s *TimeZoneService) Default() model.TimeZone {
	return s.fallback
}

// Resolve получает зону пользователя; ErrNotFound если она не задана
func (s *TimeZoneService) Resolve(ctx context.Context, userID uuid.UUID) (*model.TimeZone, error) {
	tz, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if tz == nil {
		return nil, fmt.Errorf("%w: timezone of user %s", ErrNotFound, userID)
	}

	if _, err := tz.Location(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return tz, nil
}

// ResolveOrDefault returns fallback when the user has no zone on file. A zone
// that is stored but cannot be loaded is still an error.
func (s *TimeZoneService) ResolveOrDefault(ctx context.Context, userID uuid.UUID, fallback model.TimeZone) (model.TimeZone, error) {
	tz, err := s.Resolve(ctx, userID)
	if err == nil {
		return *tz, nil
	}

	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("User has no timezone, using default",
			zap.String("user_id", userID.String()),
			zap.String("timezone", fallback.Name),
		)
		return fallback, nil
	}

	return model.TimeZone{}, err
}
