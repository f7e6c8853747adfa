package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userSelect = `
		SELECT u.id, u.name, u.email, COALESCE(u.phone_number, ''), u.is_mentor, u.created_at,
			o.id, o.name, f.id, f.name
		FROM users u
		LEFT OUTER JOIN organizations o ON u.organization_id = o.id
		LEFT OUTER JOIN fields f ON u.field_id = f.id
`

type UserRepository struct {
	*base.Repository
}

func NewUserRepository(pool base.Pool) *UserRepository {
	return &UserRepository{Repository: base.NewRepository(pool)}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var orgID, fieldID *uuid.UUID
	var orgName, fieldName *string

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhoneNumber,
		&user.IsMentor,
		&user.CreatedAt,
		&orgID,
		&orgName,
		&fieldID,
		&fieldName,
	)
	if err != nil {
		return nil, err
	}

	if orgID != nil && orgName != nil {
		user.Organization = &model.Organization{ID: *orgID, Name: *orgName}
	}
	if fieldID != nil && fieldName != nil {
		user.Field = &model.Field{ID: *fieldID, Name: *fieldName}
	}

	return &user, nil
}

// Create создаёт нового пользователя
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (name, email, phone_number, is_mentor, organization_id, field_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING id, created_at
	`

	var orgID, fieldID *uuid.UUID
	if user.Organization != nil {
		orgID = &user.Organization.ID
	}
	if user.Field != nil {
		fieldID = &user.Field.ID
	}

	err := r.QueryRow(
		ctx, query,
		user.Name,
		user.Email,
		user.PhoneNumber,
		user.IsMentor,
		orgID,
		fieldID,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// GetByID получает пользователя по ID вместе с организацией и направлением
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := scanUser(r.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil // Пользователь не найден
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

// GetByIDs получает пользователей в порядке переданных ID, пропуская отсутствующих
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.Query(ctx, userSelect+` WHERE u.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*model.User, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		byID[user.ID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	users := make([]*model.User, 0, len(byID))
	for _, id := range ids {
		if user, ok := byID[id]; ok {
			users = append(users, user)
		}
	}

	return users, nil
}

// LockByID блокирует строку пользователя до конца транзакции.
// Возвращает false, если пользователя нет.
func (r *UserRepository) LockByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var locked uuid.UUID
	err := r.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock user: %w", err)
	}

	return true, nil
}
