package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/google/uuid"
)

type SubfieldRepository struct {
	*base.Repository
}

func NewSubfieldRepository(pool base.Pool) *SubfieldRepository {
	return &SubfieldRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает подраздел по ID
func (r *SubfieldRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subfield, error) {
	var subfield model.Subfield
	err := r.QueryRow(ctx, `SELECT id, name FROM subfields WHERE id = $1`, id).Scan(&subfield.ID, &subfield.Name)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subfield: %w", err)
	}

	return &subfield, nil
}

// AddUserSubfieldIfNone привязывает подраздел к пользователю, если у него ещё нет подраздела.
// Возвращает true, если запись была добавлена.
func (r *SubfieldRepository) AddUserSubfieldIfNone(ctx context.Context, userID, subfieldID uuid.UUID) (bool, error) {
	query := `
		INSERT INTO users_subfields (user_id, subfield_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`

	affected, err := r.ExecAffected(ctx, query, userID, subfieldID)
	if err != nil {
		return false, fmt.Errorf("add user subfield: %w", err)
	}

	return affected > 0, nil
}
