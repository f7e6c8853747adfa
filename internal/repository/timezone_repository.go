package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/google/uuid"
)

type TimeZoneRepository struct {
	*base.Repository
}

func NewTimeZoneRepository(pool base.Pool) *TimeZoneRepository {
	return &TimeZoneRepository{Repository: base.NewRepository(pool)}
}

// GetByUserID получает часовой пояс пользователя, nil если не задан
func (r *TimeZoneRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.TimeZone, error) {
	query := `
		SELECT name, COALESCE(abbreviation, '')
		FROM users_timezones
		WHERE user_id = $1
	`

	var tz model.TimeZone
	err := r.QueryRow(ctx, query, userID).Scan(&tz.Name, &tz.Abbreviation)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user timezone: %w", err)
	}

	return &tz, nil
}

// Upsert сохраняет часовой пояс пользователя
func (r *TimeZoneRepository) Upsert(ctx context.Context, userID uuid.UUID, tz model.TimeZone) error {
	query := `
		INSERT INTO users_timezones (user_id, name, abbreviation)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, abbreviation = EXCLUDED.abbreviation
	`

	if _, err := r.ExecAffected(ctx, query, userID, tz.Name, tz.Abbreviation); err != nil {
		return fmt.Errorf("upsert user timezone: %w", err)
	}

	return nil
}
