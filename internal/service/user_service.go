package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Profile is a user together with the zone on file, if any.
type Profile struct {
	User     *model.User     `json:"user"`
	TimeZone *model.TimeZone `json:"timeZone,omitempty"`
}

type UserService struct {
	users     UserStore
	timezones TimeZoneWriter
	logger    *zap.Logger
}

func NewUserService(users UserStore, timezones TimeZoneWriter, logger *zap.Logger) *UserService {
	return &UserService{
		users:     users,
		timezones: timezones,
		logger:    logger,
	}
}

// GetProfile возвращает пользователя и его часовой пояс
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	tz, err := s.timezones.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &Profile{User: user, TimeZone: tz}, nil
}

// SetTimeZone сохраняет IANA зону пользователя. Новая зона действует со
// следующего расчёта, уже созданные занятия не сдвигаются.
func (s *UserService) SetTimeZone(ctx context.Context, userID uuid.UUID, name, abbreviation string) (*model.TimeZone, error) {
	tz := model.TimeZone{Name: strings.TrimSpace(name), Abbreviation: strings.TrimSpace(abbreviation)}
	if tz.Name == "" {
		return nil, fmt.Errorf("%w: time zone name is required", ErrValidation)
	}
	if _, err := tz.Location(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	if err := s.timezones.Upsert(ctx, userID, tz); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.logger.Info("User time zone updated",
		zap.String("user_id", userID.String()),
		zap.String("time_zone", tz.Name),
	)

	return &tz, nil
}
