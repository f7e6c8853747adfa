package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/events"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/recurrence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateLessonParams новое занятие; LessonDateTime задан в поясе ментора
type CreateLessonParams struct {
	StudentID             uuid.UUID
	MentorID              uuid.UUID
	SubfieldID            uuid.UUID
	LessonDateTime        time.Time
	MeetingURL            string
	IsRecurrent           bool
	EndRecurrenceDateTime *time.Time
}

type LessonService struct {
	tx        TxManager
	lessons   LessonStore
	users     UserStore
	subfields SubfieldStore
	timezones *TimeZoneService
	notifier  Notifier
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewLessonService(
	tx TxManager,
	lessons LessonStore,
	users UserStore,
	subfields SubfieldStore,
	timezones *TimeZoneService,
	notifier Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *LessonService {
	return &LessonService{
		tx:        tx,
		lessons:   lessons,
		users:     users,
		subfields: subfields,
		timezones: timezones,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// validateRecurrence нормализует дату окончания; без неё повторяющееся занятие бессрочное
func validateRecurrence(start time.Time, isRecurrent bool, end *time.Time) (*time.Time, error) {
	if !isRecurrent || end == nil {
		return nil, nil
	}
	if !recurrence.IsRecurrent(start, end) {
		return nil, fmt.Errorf("%w: recurrence must end after the lesson starts", ErrValidation)
	}
	utc := end.UTC()
	return &utc, nil
}

// CreateLesson создаёт занятие и возвращает ближайшее занятие ментора
func (s *LessonService) CreateLesson(ctx context.Context, params CreateLessonParams) (*model.Lesson, error) {
	var created *model.Lesson
	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		created, err = s.createLesson(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson created",
		zap.String("lesson_id", created.ID.String()),
		zap.String("mentor_id", params.MentorID.String()),
		zap.Bool("recurrent", created.IsRecurrent),
	)

	return s.nextLessonOrCreated(ctx, created)
}

// createLesson вставляет занятие и первого студента в транзакции из ctx
func (s *LessonService) createLesson(ctx context.Context, params CreateLessonParams) (*model.Lesson, error) {
	mentorTZ, err := s.timezones.ResolveOrDefault(ctx, params.MentorID, s.timezones.Default())
	if err != nil {
		return nil, err
	}

	start, err := mentorTZ.FromWallClock(params.LessonDateTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	start = start.UTC()

	end, err := validateRecurrence(start, params.IsRecurrent, params.EndRecurrenceDateTime)
	if err != nil {
		return nil, err
	}

	lesson := &model.Lesson{
		MentorID:              params.MentorID,
		SubfieldID:            params.SubfieldID,
		DateTime:              start,
		MeetingURL:            params.MeetingURL,
		IsRecurrent:           params.IsRecurrent,
		EndRecurrenceDateTime: end,
	}

	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := s.lessons.AddStudent(ctx, lesson.ID, params.StudentID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return lesson, nil
}

func (s *LessonService) nextLessonOrCreated(ctx context.Context, created *model.Lesson) (*model.Lesson, error) {
	next, err := s.GetNextLesson(ctx, created.MentorID)
	if errors.Is(err, ErrNotFound) {
		if err := s.populate(ctx, created); err != nil {
			return nil, err
		}
		created.OccurrenceDateTime = created.DateTime
		return created, nil
	}
	return next, err
}

// GetNextLesson возвращает ближайшее неотменённое занятие ментора не раньше текущего момента
func (s *LessonService) GetNextLesson(ctx context.Context, mentorID uuid.UUID) (*model.Lesson, error) {
	return s.nearestLesson(ctx, mentorID, true)
}

// GetPreviousLesson возвращает последнее неотменённое занятие ментора до текущего момента
func (s *LessonService) GetPreviousLesson(ctx context.Context, mentorID uuid.UUID) (*model.Lesson, error) {
	return s.nearestLesson(ctx, mentorID, false)
}

func (s *LessonService) nearestLesson(ctx context.Context, mentorID uuid.UUID, forward bool) (*model.Lesson, error) {
	mentorTZ, err := s.timezones.ResolveOrDefault(ctx, mentorID, s.timezones.Default())
	if err != nil {
		return nil, err
	}
	now, err := mentorTZ.In(s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var lessons []*model.Lesson
	if forward {
		lessons, err = s.lessons.GetUpcomingByMentor(ctx, mentorID, now)
	} else {
		lessons, err = s.lessons.GetStartedByMentor(ctx, mentorID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	ids := make([]uuid.UUID, 0, len(lessons))
	for _, lesson := range lessons {
		ids = append(ids, lesson.ID)
	}
	canceled, err := s.lessons.GetCanceledOccurrencesByLessons(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	var best *model.Lesson
	var bestAt time.Time
	for _, lesson := range lessons {
		c := newCancellations(canceled[lesson.ID])

		var at time.Time
		var ok bool
		if forward {
			at, ok = nextActive(lesson, c, now)
		} else {
			at, ok = previousActive(lesson, c, now)
		}
		if !ok {
			continue
		}

		if best == nil || (forward && at.Before(bestAt)) || (!forward && at.After(bestAt)) {
			best, bestAt = lesson, at
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no lessons for mentor %s", ErrNotFound, mentorID)
	}

	best.OccurrenceDateTime = bestAt
	if err := s.populate(ctx, best); err != nil {
		return nil, err
	}

	return best, nil
}

// populate подгружает ментора, подполе и студентов
func (s *LessonService) populate(ctx context.Context, lesson *model.Lesson) error {
	mentor, err := s.users.GetByID(ctx, lesson.MentorID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	lesson.Mentor = mentor

	subfield, err := s.subfields.GetByID(ctx, lesson.SubfieldID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	lesson.Subfield = subfield

	ids, err := s.lessons.GetStudentIDs(ctx, lesson.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	students, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	lesson.Students = students

	return nil
}

// CancelLesson отменяет занятие от имени ментора или студента.
//
// Ментор или единственный студент отменяют всё занятие при cancelAll или если оно разовое,
// иначе только ближайшее. Студент из группы пропускает ближайшее занятие или выходит из
// занятия при cancelAll, само занятие остаётся и LessonsCanceled равен нулю.
func (s *LessonService) CancelLesson(ctx context.Context, lessonID, cancelerID uuid.UUID, reason string, cancelAll bool) (*model.CancelResult, error) {
	var result *model.CancelResult

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		lesson, err := s.lessons.GetByIDForUpdate(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if lesson == nil {
			return fmt.Errorf("%w: lesson %s", ErrNotFound, lessonID)
		}
		if lesson.IsCanceled {
			return fmt.Errorf("%w: lesson is already canceled", ErrState)
		}

		canceler, err := s.users.GetByID(ctx, cancelerID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if canceler == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, cancelerID)
		}

		studentIDs, err := s.lessons.GetStudentIDs(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		byMentor := canceler.ID == lesson.MentorID
		if !byMentor && !slices.Contains(studentIDs, canceler.ID) {
			return fmt.Errorf("%w: user is not a participant of the lesson", ErrValidation)
		}

		rows, err := s.lessons.GetCanceledOccurrences(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		c := newCancellations(rows)

		now := s.now()
		next, ok := nextActive(lesson, c, now)
		if !ok {
			return fmt.Errorf("%w: lesson has no upcoming occurrences", ErrState)
		}

		result = &model.CancelResult{
			Lesson:     lesson,
			CanceledBy: canceler,
			ByMentor:   byMentor,
			CancelAll:  cancelAll,
		}

		switch {
		case !byMentor && len(studentIDs) > 1 && cancelAll:
			if err := s.lessons.RemoveStudent(ctx, lessonID, canceler.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
		case !byMentor && len(studentIDs) > 1:
			studentID := canceler.ID
			err := s.lessons.AddCanceledOccurrence(ctx, &model.CanceledOccurrence{
				LessonID:  lessonID,
				StudentID: &studentID,
				DateTime:  next,
				Reason:    reason,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
		case cancelAll || !lesson.IsRecurrent:
			if err := s.lessons.SetCanceled(ctx, lessonID, reason); err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
			// у бессрочной серии считаем только ближайшее занятие
			result.LessonsCanceled = 1
			if n, bounded := upcoming(lesson, c, now); bounded {
				result.LessonsCanceled = n
			}
		default:
			err := s.lessons.AddCanceledOccurrence(ctx, &model.CanceledOccurrence{
				LessonID: lessonID,
				DateTime: next,
				Reason:   reason,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
			result.LessonsCanceled = 1
		}

		lesson.ReasonCanceled = reason
		lesson.OccurrenceDateTime = next
		return s.populate(ctx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson canceled",
		zap.String("lesson_id", lessonID.String()),
		zap.String("canceled_by", cancelerID.String()),
		zap.Bool("by_mentor", result.ByMentor),
		zap.Bool("cancel_all", cancelAll),
		zap.Int("lessons_canceled", result.LessonsCanceled),
	)

	s.notifier.LessonCanceled(ctx, result)
	s.publish(ctx, events.LessonCanceled, lessonID, cancelerID)

	return result, nil
}

// SetRecurrence обновляет повторение занятия и уведомляет студентов
func (s *LessonService) SetRecurrence(ctx context.Context, lessonID uuid.UUID, isRecurrent bool, end *time.Time) (*model.Lesson, error) {
	var lesson *model.Lesson

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		lesson, err = s.lessons.GetByIDForUpdate(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if lesson == nil {
			return fmt.Errorf("%w: lesson %s", ErrNotFound, lessonID)
		}
		if lesson.IsCanceled {
			return fmt.Errorf("%w: lesson is canceled", ErrState)
		}

		normalized, err := validateRecurrence(lesson.DateTime, isRecurrent, end)
		if err != nil {
			return err
		}

		if err := s.lessons.UpdateRecurrence(ctx, lessonID, isRecurrent, normalized); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		lesson.IsRecurrent = isRecurrent
		lesson.EndRecurrenceDateTime = normalized

		return s.populate(ctx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson recurrence updated",
		zap.String("lesson_id", lessonID.String()),
		zap.Bool("recurrent", isRecurrent),
	)

	s.notifier.LessonRecurrenceUpdated(ctx, lesson)
	s.publish(ctx, events.LessonUpdated, lessonID, lesson.MentorID)

	return lesson, nil
}

// SetMentorPresence отмечает присутствие ментора; занятие должно уже начаться
func (s *LessonService) SetMentorPresence(ctx context.Context, lessonID, mentorID uuid.UUID, isPresent bool) (*model.Lesson, error) {
	var lesson *model.Lesson

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		lesson, err = s.lessons.GetByIDForUpdate(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if lesson == nil {
			return fmt.Errorf("%w: lesson %s", ErrNotFound, lessonID)
		}
		if lesson.MentorID != mentorID {
			return fmt.Errorf("%w: only the mentor can set the mentor presence", ErrValidation)
		}
		if lesson.IsCanceled {
			return fmt.Errorf("%w: lesson is canceled", ErrState)
		}

		now := s.now().UTC()
		if lesson.DateTime.After(now) {
			return fmt.Errorf("%w: lesson has not started yet", ErrState)
		}

		if err := s.lessons.SetMentorPresence(ctx, lessonID, isPresent, now); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		lesson.IsMentorPresent = &isPresent
		lesson.MentorPresenceDateTime = &now

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Mentor presence set",
		zap.String("lesson_id", lessonID.String()),
		zap.Bool("present", isPresent),
	)

	s.publish(ctx, events.LessonUpdated, lessonID, mentorID)
	return lesson, nil
}

// SetMeetingURL обновляет ссылку на встречу
func (s *LessonService) SetMeetingURL(ctx context.Context, lessonID uuid.UUID, meetingURL string) error {
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if lesson == nil {
		return fmt.Errorf("%w: lesson %s", ErrNotFound, lessonID)
	}

	if err := s.lessons.UpdateMeetingURL(ctx, lessonID, meetingURL); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.publish(ctx, events.LessonUpdated, lessonID, lesson.MentorID)
	return nil
}

// AddStudent добавляет студента в существующее занятие
func (s *LessonService) AddStudent(ctx context.Context, lessonID, studentID uuid.UUID) (*model.Lesson, error) {
	var lesson *model.Lesson
	var student *model.User

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		lesson, err = s.lessons.GetByIDForUpdate(ctx, lessonID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if lesson == nil {
			return fmt.Errorf("%w: lesson %s", ErrNotFound, lessonID)
		}
		if lesson.IsCanceled {
			return fmt.Errorf("%w: lesson is canceled", ErrState)
		}

		student, err = s.users.GetByID(ctx, studentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if student == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, studentID)
		}
		if student.IsMentor || student.ID == lesson.MentorID {
			return fmt.Errorf("%w: only students can be added to a lesson", ErrValidation)
		}

		if err := s.lessons.AddStudent(ctx, lessonID, studentID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		return s.populate(ctx, lesson)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Student added to lesson",
		zap.String("lesson_id", lessonID.String()),
		zap.String("student_id", studentID.String()),
	)

	s.notifier.StudentAdded(ctx, lesson, student)
	s.publish(ctx, events.LessonUpdated, lessonID, studentID)

	return lesson, nil
}

func (s *LessonService) publish(ctx context.Context, eventType string, lessonID, userID uuid.UUID) {
	err := s.publisher.Publish(ctx, events.Event{
		EventType:  eventType,
		LessonID:   &lessonID,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event", eventType), zap.Error(err))
	}
}
