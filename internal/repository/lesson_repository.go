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

const lessonColumns = `id, mentor_id, subfield_id, date_time, meeting_url, is_recurrent,
		end_recurrence_date_time, is_canceled, reason_canceled, is_mentor_present,
		mentor_presence_date_time, created_at`

type LessonRepository struct {
	*base.Repository
}

func NewLessonRepository(pool base.Pool) *LessonRepository {
	return &LessonRepository{Repository: base.NewRepository(pool)}
}

func scanLesson(row pgx.Row) (*model.Lesson, error) {
	var lesson model.Lesson
	var reason *string
	err := row.Scan(
		&lesson.ID,
		&lesson.MentorID,
		&lesson.SubfieldID,
		&lesson.DateTime,
		&lesson.MeetingURL,
		&lesson.IsRecurrent,
		&lesson.EndRecurrenceDateTime,
		&lesson.IsCanceled,
		&reason,
		&lesson.IsMentorPresent,
		&lesson.MentorPresenceDateTime,
		&lesson.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		lesson.ReasonCanceled = *reason
	}
	return &lesson, nil
}

func collectLessons(rows pgx.Rows) ([]*model.Lesson, error) {
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}

	return lessons, nil
}

// Create создаёт занятие
func (r *LessonRepository) Create(ctx context.Context, lesson *model.Lesson) error {
	query := `
		INSERT INTO users_lessons (mentor_id, subfield_id, date_time, meeting_url, is_recurrent, end_recurrence_date_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		lesson.MentorID,
		lesson.SubfieldID,
		lesson.DateTime,
		lesson.MeetingURL,
		lesson.IsRecurrent,
		lesson.EndRecurrenceDateTime,
	).Scan(&lesson.ID, &lesson.CreatedAt)

	if err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *LessonRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM users_lessons WHERE id = $1`

	lesson, err := scanLesson(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}

	return lesson, nil
}

// GetByIDForUpdate получает занятие и блокирует строку
func (r *LessonRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM users_lessons WHERE id = $1 FOR UPDATE`

	lesson, err := scanLesson(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock lesson: %w", err)
	}

	return lesson, nil
}

// GetUpcomingByMentor получает неотменённые занятия ментора, у которых может быть занятие не раньше from
func (r *LessonRepository) GetUpcomingByMentor(ctx context.Context, mentorID uuid.UUID, from time.Time) ([]*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + `
		FROM users_lessons
		WHERE mentor_id = $1 AND is_canceled = false
			AND (date_time >= $2 OR (is_recurrent = true
				AND (end_recurrence_date_time IS NULL OR end_recurrence_date_time > $2)))
		ORDER BY date_time ASC
	`

	rows, err := r.Query(ctx, query, mentorID, from)
	if err != nil {
		return nil, fmt.Errorf("get upcoming mentor lessons: %w", err)
	}

	return collectLessons(rows)
}

// GetStartedByMentor получает неотменённые занятия ментора, начавшиеся до before
func (r *LessonRepository) GetStartedByMentor(ctx context.Context, mentorID uuid.UUID, before time.Time) ([]*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + `
		FROM users_lessons
		WHERE mentor_id = $1 AND is_canceled = false AND date_time < $2
		ORDER BY date_time DESC
	`

	rows, err := r.Query(ctx, query, mentorID, before)
	if err != nil {
		return nil, fmt.Errorf("get started mentor lessons: %w", err)
	}

	return collectLessons(rows)
}

// GetActiveSince returns every non canceled lesson that may still have an
// occurrence at or after since.
func (r *LessonRepository) GetActiveSince(ctx context.Context, since time.Time) ([]*model.Lesson, error) {
	query := `SELECT ` + lessonColumns + `
		FROM users_lessons
		WHERE is_canceled = false
			AND (date_time >= $1 OR (is_recurrent = true
				AND (end_recurrence_date_time IS NULL OR end_recurrence_date_time > $1)))
		ORDER BY date_time ASC
	`

	rows, err := r.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get active lessons: %w", err)
	}

	return collectLessons(rows)
}

// SetCanceled отменяет занятие целиком
func (r *LessonRepository) SetCanceled(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE users_lessons SET is_canceled = true, reason_canceled = $1 WHERE id = $2`

	affected, err := r.ExecAffected(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("cancel lesson: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// UpdateRecurrence обновляет параметры повторения
func (r *LessonRepository) UpdateRecurrence(ctx context.Context, id uuid.UUID, isRecurrent bool, end *time.Time) error {
	query := `UPDATE users_lessons SET is_recurrent = $1, end_recurrence_date_time = $2 WHERE id = $3`

	affected, err := r.ExecAffected(ctx, query, isRecurrent, end, id)
	if err != nil {
		return fmt.Errorf("update lesson recurrence: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// SetMentorPresence отмечает, присутствовал ли ментор на занятии
func (r *LessonRepository) SetMentorPresence(ctx context.Context, id uuid.UUID, isPresent bool, at time.Time) error {
	query := `UPDATE users_lessons SET is_mentor_present = $1, mentor_presence_date_time = $2 WHERE id = $3`

	affected, err := r.ExecAffected(ctx, query, isPresent, at, id)
	if err != nil {
		return fmt.Errorf("set mentor presence: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// UpdateMeetingURL обновляет ссылку на встречу
func (r *LessonRepository) UpdateMeetingURL(ctx context.Context, id uuid.UUID, meetingURL string) error {
	affected, err := r.ExecAffected(ctx, `UPDATE users_lessons SET meeting_url = $1 WHERE id = $2`, meetingURL, id)
	if err != nil {
		return fmt.Errorf("update meeting url: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("lesson not found")
	}

	return nil
}

// AddStudent добавляет студента в состав занятия
func (r *LessonRepository) AddStudent(ctx context.Context, lessonID, studentID uuid.UUID) error {
	query := `
		INSERT INTO users_lessons_students (lesson_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (lesson_id, student_id) DO NOTHING
	`

	if _, err := r.ExecAffected(ctx, query, lessonID, studentID); err != nil {
		return fmt.Errorf("add lesson student: %w", err)
	}

	return nil
}

// RemoveStudent убирает студента из состава занятия
func (r *LessonRepository) RemoveStudent(ctx context.Context, lessonID, studentID uuid.UUID) error {
	query := `DELETE FROM users_lessons_students WHERE lesson_id = $1 AND student_id = $2`

	affected, err := r.ExecAffected(ctx, query, lessonID, studentID)
	if err != nil {
		return fmt.Errorf("remove lesson student: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("student is not in the lesson")
	}

	return nil
}

// GetStudentIDs получает состав занятия
func (r *LessonRepository) GetStudentIDs(ctx context.Context, lessonID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT student_id
		FROM users_lessons_students
		WHERE lesson_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.Query(ctx, query, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get lesson students: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lesson student: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson students: %w", err)
	}

	return ids, nil
}

// AddCanceledOccurrence отменяет одно занятие серии (для всех или для одного студента)
func (r *LessonRepository) AddCanceledOccurrence(ctx context.Context, occurrence *model.CanceledOccurrence) error {
	query := `
		INSERT INTO users_lessons_canceled (lesson_id, student_id, date_time, reason)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.ExecAffected(ctx, query, occurrence.LessonID, occurrence.StudentID, occurrence.DateTime, occurrence.Reason)
	if err != nil {
		return fmt.Errorf("add canceled occurrence: %w", err)
	}

	return nil
}

func collectCanceledOccurrences(rows pgx.Rows) ([]*model.CanceledOccurrence, error) {
	defer rows.Close()

	var occurrences []*model.CanceledOccurrence
	for rows.Next() {
		var occurrence model.CanceledOccurrence
		err := rows.Scan(
			&occurrence.LessonID,
			&occurrence.StudentID,
			&occurrence.DateTime,
			&occurrence.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan canceled occurrence: %w", err)
		}
		occurrences = append(occurrences, &occurrence)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canceled occurrences: %w", err)
	}

	return occurrences, nil
}

// GetCanceledOccurrences получает отменённые занятия серии
func (r *LessonRepository) GetCanceledOccurrences(ctx context.Context, lessonID uuid.UUID) ([]*model.CanceledOccurrence, error) {
	query := `
		SELECT lesson_id, student_id, date_time, reason
		FROM users_lessons_canceled
		WHERE lesson_id = $1
		ORDER BY date_time ASC
	`

	rows, err := r.Query(ctx, query, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get canceled occurrences: %w", err)
	}

	return collectCanceledOccurrences(rows)
}

// GetCanceledOccurrencesByLessons получает отмены сразу для нескольких занятий, сгруппированные по занятию
func (r *LessonRepository) GetCanceledOccurrencesByLessons(ctx context.Context, lessonIDs []uuid.UUID) (map[uuid.UUID][]*model.CanceledOccurrence, error) {
	byLesson := make(map[uuid.UUID][]*model.CanceledOccurrence, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return byLesson, nil
	}

	query := `
		SELECT lesson_id, student_id, date_time, reason
		FROM users_lessons_canceled
		WHERE lesson_id = ANY($1)
		ORDER BY date_time ASC
	`

	rows, err := r.Query(ctx, query, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("get canceled occurrences by lessons: %w", err)
	}

	occurrences, err := collectCanceledOccurrences(rows)
	if err != nil {
		return nil, err
	}
	for _, occurrence := range occurrences {
		byLesson[occurrence.LessonID] = append(byLesson[occurrence.LessonID], occurrence)
	}

	return byLesson, nil
}
