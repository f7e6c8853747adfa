package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const lessonRequestColumns = `ulr.id, ulr.student_id, ulr.mentor_id, ulr.subfield_id, ulr.sent_date_time,
		ulr.lesson_date_time, ulr.is_rejected, ulr.is_canceled`

type LessonRequestRepository struct {
	*base.Repository
}

func NewLessonRequestRepository(pool base.Pool) *LessonRequestRepository {
	return &LessonRequestRepository{Repository: base.NewRepository(pool)}
}

func scanLessonRequest(row pgx.Row) (*model.LessonRequest, error) {
	var req model.LessonRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.MentorID,
		&req.SubfieldID,
		&req.SentDateTime,
		&req.LessonDateTime,
		&req.IsRejected,
		&req.IsCanceled,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func collectLessonRequests(rows pgx.Rows) ([]*model.LessonRequest, error) {
	defer rows.Close()

	var requests []*model.LessonRequest
	for rows.Next() {
		req, err := scanLessonRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson requests: %w", err)
	}

	return requests, nil
}

// Create создает заявку и заполняет её ID
func (r *LessonRequestRepository) Create(ctx context.Context, req *model.LessonRequest) error {
	query := `
		INSERT INTO users_lesson_requests (student_id, sent_date_time)
		VALUES ($1, $2)
		RETURNING id
	`

	err := r.QueryRow(ctx, query, req.StudentID, req.SentDateTime).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("create lesson request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *LessonRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LessonRequest, error) {
	query := `SELECT ` + lessonRequestColumns + `
		FROM users_lesson_requests ulr
		WHERE ulr.id = $1
	`

	req, err := scanLessonRequest(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson request: %w", err)
	}

	return req, nil
}

// GetByIDForUpdate получает заявку и блокирует строку до конца транзакции
func (r *LessonRequestRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LessonRequest, error) {
	query := `SELECT ` + lessonRequestColumns + `
		FROM users_lesson_requests ulr
		WHERE ulr.id = $1
		FOR UPDATE
	`

	req, err := scanLessonRequest(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock lesson request: %w", err)
	}

	return req, nil
}

// GetLatestByUser returns the most recently sent request where the user is
// the student, or the mentor when asMentor is set. Older requests are not visible.
func (r *LessonRequestRepository) GetLatestByUser(ctx context.Context, userID uuid.UUID, asMentor bool) (*model.LessonRequest, error) {
	column := "ulr.student_id"
	if asMentor {
		column = "ulr.mentor_id"
	}

	query := `SELECT ` + lessonRequestColumns + `, s.name
		FROM users_lesson_requests ulr
		LEFT OUTER JOIN subfields s ON ulr.subfield_id = s.id
		WHERE ` + column + ` = $1
		ORDER BY ulr.sent_date_time DESC
		LIMIT 1
	`

	var req model.LessonRequest
	var subfieldName *string
	err := r.QueryRow(ctx, query, userID).Scan(
		&req.ID,
		&req.StudentID,
		&req.MentorID,
		&req.SubfieldID,
		&req.SentDateTime,
		&req.LessonDateTime,
		&req.IsRejected,
		&req.IsCanceled,
		&subfieldName,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest lesson request: %w", err)
	}

	if req.SubfieldID != nil && subfieldName != nil {
		req.Subfield = &model.Subfield{ID: *req.SubfieldID, Name: *subfieldName}
	}

	return &req, nil
}

// GetOpenByStudent получает заявки студента, которые не отклонены и не отменены
func (r *LessonRequestRepository) GetOpenByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.LessonRequest, error) {
	query := `SELECT ` + lessonRequestColumns + `
		FROM users_lesson_requests ulr
		WHERE ulr.student_id = $1 AND ulr.is_rejected = false AND ulr.is_canceled = false
		ORDER BY ulr.sent_date_time DESC
	`

	rows, err := r.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("get open lesson requests: %w", err)
	}

	return collectLessonRequests(rows)
}

// GetOpenMatched получает все заявки с назначенным ментором, ожидающие ответа
func (r *LessonRequestRepository) GetOpenMatched(ctx context.Context) ([]*model.LessonRequest, error) {
	query := `SELECT ` + lessonRequestColumns + `
		FROM users_lesson_requests ulr
		WHERE ulr.mentor_id IS NOT NULL AND ulr.is_rejected = false AND ulr.is_canceled = false
		ORDER BY ulr.sent_date_time ASC
	`

	rows, err := r.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get matched lesson requests: %w", err)
	}

	return collectLessonRequests(rows)
}

// AssignMentor назначает ментора и предлагаемое время занятия
func (r *LessonRequestRepository) AssignMentor(ctx context.Context, id, mentorID, subfieldID uuid.UUID, lessonDateTime time.Time, sentDateTime time.Time) error {
	query := `
		UPDATE users_lesson_requests
		SET mentor_id = $1, subfield_id = $2, lesson_date_time = $3, sent_date_time = $4
		WHERE id = $5
	`

	affected, err := r.ExecAffected(ctx, query, mentorID, subfieldID, lessonDateTime, sentDateTime, id)
	if err != nil {
		return fmt.Errorf("assign mentor: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson request not found")
	}

	return nil
}

// SetRejected помечает заявку отклонённой
func (r *LessonRequestRepository) SetRejected(ctx context.Context, id uuid.UUID) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users_lesson_requests SET is_rejected = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reject lesson request: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson request not found")
	}

	return nil
}

// SetCanceled помечает заявку отменённой
func (r *LessonRequestRepository) SetCanceled(ctx context.Context, id uuid.UUID) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users_lesson_requests SET is_canceled = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("cancel lesson request: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson request not found")
	}

	return nil
}

// Delete удаляет заявку (после принятия)
func (r *LessonRequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM users_lesson_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lesson request: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson request not found")
	}

	return nil
}
